// Package fake provides utilities for generating random player and server records for testing and development purposes.
package fake

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/warden/internal/models"
	"github.com/woozymasta/warden/internal/punish"
)

// GenerateData populates the store with count players and about count/10 servers.
// Some players get bans, some servers get verified or punished.
func GenerateData(store *punish.Store, count int) {
	names := []string{"Dusk", "Nomad", "Ranger", "Viper", "Echo", "Falcon", "Ghost", "Hunter", "Raven", "Wolf"}
	maps := []string{"Chernarus", "Livonia", "Namalsk", "Takistan", "Sakhal", "Deer Isle"}
	reasons := []string{"aimbot", "wallhack", "speedhack", "griefing", "ban evasion"}

	now := time.Now()
	var players, servers, bans, punishments int

	for i := 0; i < count; i++ {
		hwid := randomHWID()
		nickname := fmt.Sprintf("%s%d", names[rand.Intn(len(names))], rand.Intn(1000))
		ip := randomIP()

		if _, _, err := store.EnsurePlayer(hwid, nickname, ip); err != nil {
			log.Warn().Err(err).Msg("Failed to generate fake player")
			continue
		}
		players++

		// 15% chance banned, a third of those permanently
		if rand.Float32() < 0.15 {
			ban := models.Ban{
				Reason:     reasons[rand.Intn(len(reasons))],
				ActiveFrom: now.Add(-time.Duration(rand.Intn(72)) * time.Hour),
				IsGlobal:   true,
			}
			if rand.Float32() < 0.33 {
				ban.IsPermanent = true
			} else {
				ban.ActiveUntil = now.Add(time.Duration(rand.Intn(720)+1) * time.Hour)
			}

			if _, err := store.AddBan(hwid, ban); err == nil {
				bans++
			}
		}

		if i%10 != 0 {
			continue
		}

		srv, _, err := store.EnsureServer(ip, 2302+rand.Intn(100), randomHWID())
		if err != nil {
			log.Warn().Err(err).Msg("Failed to generate fake server")
			continue
		}
		servers++

		// 60% chance verified
		if rand.Float32() < 0.6 {
			_, _ = store.SetVerified(srv.ID, true)
			_, _ = store.UpdateListing(srv.Token, models.Telemetry{
				Name:          fmt.Sprintf("%s #%d [PvP]", maps[rand.Intn(len(maps))], rand.Intn(100)),
				PlayersActive: rand.Intn(60),
				MaxPlayers:    60,
			})
		}

		// 10% chance punished
		if rand.Float32() < 0.1 {
			p := models.Punishment{
				Severity:    models.Severity(rand.Intn(int(models.PermanentServerListRemoval) + 1)),
				Reason:      "fake",
				ActiveFrom:  now,
				ActiveUntil: now.Add(time.Duration(rand.Intn(48)+1) * time.Hour),
			}
			p.IsPermanent = p.Severity == models.PermanentServerListRemoval

			if _, err := store.AddPunishment(srv.ID, p); err == nil {
				punishments++
			}
		}
	}

	log.Info().
		Int("players", players).
		Int("servers", servers).
		Int("bans", bans).
		Int("punishments", punishments).
		Msg("Fake data generated")
}

func randomHWID() string {
	parts := make([]string, 6)
	for i := range parts {
		parts[i] = fmt.Sprintf("%02X", rand.Intn(256))
	}

	return strings.Join(parts, ":")
}

func randomIP() string {
	return fmt.Sprintf("%d.%d.%d.%d", rand.Intn(220)+1, rand.Intn(255), rand.Intn(255), rand.Intn(255))
}
