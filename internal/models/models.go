// Package models defines the records shared by the store, the protocol handlers and persistence.
package models

import (
	"slices"
	"time"
)

// Capability is an explicit permission granted to a player record.
type Capability string

// Known capabilities.
const (
	CapGlobalBan    Capability = "global_ban"
	CapServerPunish Capability = "server_punish"
	CapBanView      Capability = "ban_view"
)

// Known reports whether c is one of the defined capabilities.
func (c Capability) Known() bool {
	switch c {
	case CapGlobalBan, CapServerPunish, CapBanView:
		return true
	default:
		return false
	}
}

// Player is the identity of one end-user, looked up by hardware fingerprint.
type Player struct {
	ID           string       `json:"id"`
	Nickname     string       `json:"nickname"`
	IP           string       `json:"ip"`
	Token        string       `json:"token,omitempty"`
	HWID         string       `json:"hwid"`
	Capabilities []Capability `json:"capabilities,omitempty"`
	BanHistory   BanHistory   `json:"ban_history"`
}

// HasCapability reports whether the player was granted c.
func (p Player) HasCapability(c Capability) bool {
	return slices.Contains(p.Capabilities, c)
}

// Public returns a copy without the secret token and capability set,
// suitable for sending to game servers.
func (p Player) Public() Player {
	out := p.Clone()
	out.Token = ""
	out.Capabilities = nil

	return out
}

// Clone returns a deep copy of the player.
func (p Player) Clone() Player {
	p.Capabilities = slices.Clone(p.Capabilities)
	p.BanHistory.Entries = slices.Clone(p.BanHistory.Entries)

	return p
}

// Server is the identity of one hosted game server.
type Server struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	IP                string            `json:"ip"`
	Token             string            `json:"token,omitempty"`
	HWID              string            `json:"hwid"`
	Link              string            `json:"link"`
	Port              int               `json:"port"`
	PlayersActive     int               `json:"players_active"`
	MaxPlayers        int               `json:"max_players"`
	IsVerified        bool              `json:"is_verified"`
	PunishmentHistory PunishmentHistory `json:"punishment_history"`
}

// Clone returns a deep copy of the server.
func (s Server) Clone() Server {
	s.PunishmentHistory.Entries = slices.Clone(s.PunishmentHistory.Entries)

	return s
}

// Ban is a player-scoped disciplinary entry.
type Ban struct {
	ActiveFrom  time.Time `json:"active_from"`
	ActiveUntil time.Time `json:"active_until"`
	Reason      string    `json:"reason"`
	IssuerID    string    `json:"issuer_id"`
	ID          int       `json:"id"`
	IsGlobal    bool      `json:"is_global"`
	IsPermanent bool      `json:"is_permanent"`
}

// Expired reports whether a non-permanent ban ended strictly before now.
func (b Ban) Expired(now time.Time) bool {
	return !b.IsPermanent && b.ActiveUntil.Before(now)
}

// Active reports whether the ban is in force at now.
func (b Ban) Active(now time.Time) bool {
	return !b.ActiveFrom.After(now) && !b.Expired(now)
}

// Punishment is a server-scoped disciplinary entry.
type Punishment struct {
	ActiveFrom  time.Time `json:"active_from"`
	ActiveUntil time.Time `json:"active_until"`
	Reason      string    `json:"reason"`
	IssuerID    string    `json:"issuer_id"`
	ID          int       `json:"id"`
	Severity    Severity  `json:"severity"`
	IsGlobal    bool      `json:"is_global"`
	IsPermanent bool      `json:"is_permanent"`
}

// Expired reports whether a non-permanent punishment ended strictly before now.
func (p Punishment) Expired(now time.Time) bool {
	return !p.IsPermanent && p.ActiveUntil.Before(now)
}

// Active reports whether the punishment is in force at now.
func (p Punishment) Active(now time.Time) bool {
	return !p.ActiveFrom.After(now) && !p.Expired(now)
}

// BanHistory is the ordered ban list of one player.
type BanHistory struct {
	Entries           []Ban `json:"entries"`
	IsPermanentActive bool  `json:"is_permanent_active"`
	LastID            int   `json:"last_id"`
}

// Recompute refreshes IsPermanentActive from the current entries.
func (h *BanHistory) Recompute() {
	h.IsPermanentActive = false
	for _, b := range h.Entries {
		if b.IsPermanent {
			h.IsPermanentActive = true
			return
		}
	}
}

// Expire drops every expired non-permanent entry, recomputes the permanent flag
// and returns the number of removed entries.
func (h *BanHistory) Expire(now time.Time) int {
	kept := h.Entries[:0]
	for _, b := range h.Entries {
		h.LastID = max(h.LastID, b.ID)
		if !b.Expired(now) {
			kept = append(kept, b)
		}
	}

	removed := len(h.Entries) - len(kept)
	if len(kept) == 0 {
		kept = nil
	}
	h.Entries = kept
	h.Recompute()

	return removed
}

// AllocateID issues the next entry ID. IDs are never reused, even after
// the entry that carried them has expired.
func (h *BanHistory) AllocateID() int {
	for _, b := range h.Entries {
		h.LastID = max(h.LastID, b.ID)
	}
	h.LastID++

	return h.LastID
}

// PunishmentHistory is the ordered punishment list of one server.
type PunishmentHistory struct {
	Entries           []Punishment `json:"entries"`
	IsPermanentActive bool         `json:"is_permanent_active"`
	LastID            int          `json:"last_id"`
}

// Recompute refreshes IsPermanentActive from the current entries.
func (h *PunishmentHistory) Recompute() {
	h.IsPermanentActive = false
	for _, p := range h.Entries {
		if p.IsPermanent {
			h.IsPermanentActive = true
			return
		}
	}
}

// Expire drops every expired non-permanent entry, recomputes the permanent flag
// and returns the number of removed entries.
func (h *PunishmentHistory) Expire(now time.Time) int {
	kept := h.Entries[:0]
	for _, p := range h.Entries {
		h.LastID = max(h.LastID, p.ID)
		if !p.Expired(now) {
			kept = append(kept, p)
		}
	}

	removed := len(h.Entries) - len(kept)
	if len(kept) == 0 {
		kept = nil
	}
	h.Entries = kept
	h.Recompute()

	return removed
}

// AllocateID issues the next entry ID. IDs are never reused, even after
// the entry that carried them has expired.
func (h *PunishmentHistory) AllocateID() int {
	for _, p := range h.Entries {
		h.LastID = max(h.LastID, p.ID)
	}
	h.LastID++

	return h.LastID
}

// ListRemovalActive reports whether any active entry removes the server from the list.
func (h *PunishmentHistory) ListRemovalActive(now time.Time) bool {
	for _, p := range h.Entries {
		if p.Severity.RemovesListing() && p.Active(now) {
			return true
		}
	}

	return false
}

// Listing is the publishable part of a verified server's live telemetry.
type Listing struct {
	UpdatedAt     time.Time `json:"updated_at"`
	ServerID      string    `json:"server_id"`
	Name          string    `json:"name"`
	IP            string    `json:"ip"`
	Link          string    `json:"link"`
	CountryCode   string    `json:"country_code,omitempty"`
	Port          int       `json:"port"`
	PlayersActive int       `json:"players_active"`
	MaxPlayers    int       `json:"max_players"`
}

// Stats is a summary of the stored records.
type Stats struct {
	Players     int `json:"players"`
	Servers     int `json:"servers"`
	Verified    int `json:"verified"`
	Bans        int `json:"bans"`
	Punishments int `json:"punishments"`
	Listed      int `json:"listed"`
}

// Telemetry is the live state a game server reports about itself.
type Telemetry struct {
	Name          string `json:"name"`
	Link          string `json:"link"`
	CountryCode   string `json:"country_code,omitempty"`
	PlayersActive int    `json:"players_active"`
	MaxPlayers    int    `json:"max_players"`
}
