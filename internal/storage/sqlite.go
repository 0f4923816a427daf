// Package storage keeps the durable snapshot of player and server records in SQLite.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/woozymasta/warden/internal/models"
	_ "modernc.org/sqlite" // Driver sqlite
)

// Repository manages the SQLite database connection.
type Repository struct {
	db    *sql.DB
	path  string
	fresh bool
}

// New opens (or creates) the SQLite database at dbPath and runs migrations.
// Fresh reports afterwards whether the file did not exist before.
func New(dbPath string) (*Repository, error) {
	_, statErr := os.Stat(dbPath)
	fresh := errors.Is(statErr, os.ErrNotExist)

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repository{db: db, path: dbPath, fresh: fresh}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Fresh reports whether the database file was created by New.
func (r *Repository) Fresh() bool {
	return r.fresh
}

// Path returns the database file path.
func (r *Repository) Path() string {
	return r.path
}

// Save replaces the stored players and servers with the given collections.
// The whole snapshot is written in one transaction, so readers see either the old or the new state.
func (r *Repository) Save(players []models.Player, servers []models.Server) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"server_punishments", "servers", "player_bans", "players"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if err := savePlayers(tx, players); err != nil {
		return err
	}
	if err := saveServers(tx, servers); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}

	return nil
}

func savePlayers(tx *sql.Tx, players []models.Player) error {
	for _, p := range players {
		_, err := tx.Exec(`
			INSERT INTO players (hwid, id, nickname, ip, token, capabilities, is_permanent_active, last_ban_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			p.HWID, p.ID, p.Nickname, p.IP, p.Token, joinCapabilities(p.Capabilities), p.BanHistory.IsPermanentActive,
			p.BanHistory.LastID,
		)
		if err != nil {
			return fmt.Errorf("insert player %s: %w", p.HWID, err)
		}

		for pos, b := range p.BanHistory.Entries {
			_, err := tx.Exec(`
				INSERT INTO player_bans (player_hwid, ban_id, reason, issuer_id, active_from, active_until, is_global, is_permanent, position)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				p.HWID, b.ID, b.Reason, b.IssuerID, toMillis(b.ActiveFrom), toMillis(b.ActiveUntil), b.IsGlobal, b.IsPermanent, pos,
			)
			if err != nil {
				return fmt.Errorf("insert ban %d of %s: %w", b.ID, p.HWID, err)
			}
		}
	}

	return nil
}

func saveServers(tx *sql.Tx, servers []models.Server) error {
	for _, s := range servers {
		_, err := tx.Exec(`
			INSERT INTO servers (id, name, ip, port, hwid, token, link, players_active, max_players, is_verified, is_permanent_active, last_punishment_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.ID, s.Name, s.IP, s.Port, s.HWID, s.Token, s.Link, s.PlayersActive, s.MaxPlayers, s.IsVerified,
			s.PunishmentHistory.IsPermanentActive, s.PunishmentHistory.LastID,
		)
		if err != nil {
			return fmt.Errorf("insert server %s: %w", s.ID, err)
		}

		for pos, p := range s.PunishmentHistory.Entries {
			_, err := tx.Exec(`
				INSERT INTO server_punishments (server_id, punishment_id, severity, reason, issuer_id, active_from, active_until, is_global, is_permanent, position)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				s.ID, p.ID, int(p.Severity), p.Reason, p.IssuerID, toMillis(p.ActiveFrom), toMillis(p.ActiveUntil), p.IsGlobal, p.IsPermanent, pos,
			)
			if err != nil {
				return fmt.Errorf("insert punishment %d of %s: %w", p.ID, s.ID, err)
			}
		}
	}

	return nil
}

// Load reads both collections. Players and servers are read independently,
// a failure in one is reported together with the other.
func (r *Repository) Load() ([]models.Player, []models.Server, error) {
	players, errPlayers := r.loadPlayers()
	servers, errServers := r.loadServers()

	return players, servers, errors.Join(errPlayers, errServers)
}

func (r *Repository) loadPlayers() ([]models.Player, error) {
	rows, err := r.db.Query(`
		SELECT hwid, id, nickname, ip, token, capabilities, is_permanent_active, last_ban_id
		FROM players
		ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("query players: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		players []models.Player
		index   = make(map[string]int)
	)
	for rows.Next() {
		var (
			p    models.Player
			caps string
		)
		if err := rows.Scan(&p.HWID, &p.ID, &p.Nickname, &p.IP, &p.Token, &caps, &p.BanHistory.IsPermanentActive, &p.BanHistory.LastID); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		p.Capabilities = splitCapabilities(caps)
		index[p.HWID] = len(players)
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	banRows, err := r.db.Query(`
		SELECT player_hwid, ban_id, reason, issuer_id, active_from, active_until, is_global, is_permanent
		FROM player_bans
		ORDER BY player_hwid, position
	`)
	if err != nil {
		return nil, fmt.Errorf("query bans: %w", err)
	}
	defer func() { _ = banRows.Close() }()

	for banRows.Next() {
		var (
			hwid        string
			b           models.Ban
			from, until int64
		)
		if err := banRows.Scan(&hwid, &b.ID, &b.Reason, &b.IssuerID, &from, &until, &b.IsGlobal, &b.IsPermanent); err != nil {
			return nil, fmt.Errorf("scan ban: %w", err)
		}
		b.ActiveFrom, b.ActiveUntil = fromMillis(from), fromMillis(until)

		i, ok := index[hwid]
		if !ok {
			continue
		}
		players[i].BanHistory.Entries = append(players[i].BanHistory.Entries, b)
	}

	return players, banRows.Err()
}

func (r *Repository) loadServers() ([]models.Server, error) {
	rows, err := r.db.Query(`
		SELECT id, name, ip, port, hwid, token, link, players_active, max_players, is_verified, is_permanent_active, last_punishment_id
		FROM servers
		ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("query servers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		servers []models.Server
		index   = make(map[string]int)
	)
	for rows.Next() {
		var s models.Server
		if err := rows.Scan(
			&s.ID, &s.Name, &s.IP, &s.Port, &s.HWID, &s.Token, &s.Link,
			&s.PlayersActive, &s.MaxPlayers, &s.IsVerified, &s.PunishmentHistory.IsPermanentActive,
			&s.PunishmentHistory.LastID,
		); err != nil {
			return nil, fmt.Errorf("scan server: %w", err)
		}
		index[s.ID] = len(servers)
		servers = append(servers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	pRows, err := r.db.Query(`
		SELECT server_id, punishment_id, severity, reason, issuer_id, active_from, active_until, is_global, is_permanent
		FROM server_punishments
		ORDER BY server_id, position
	`)
	if err != nil {
		return nil, fmt.Errorf("query punishments: %w", err)
	}
	defer func() { _ = pRows.Close() }()

	for pRows.Next() {
		var (
			serverID    string
			p           models.Punishment
			severity    int
			from, until int64
		)
		if err := pRows.Scan(&serverID, &p.ID, &severity, &p.Reason, &p.IssuerID, &from, &until, &p.IsGlobal, &p.IsPermanent); err != nil {
			return nil, fmt.Errorf("scan punishment: %w", err)
		}
		p.Severity = models.Severity(severity)
		p.ActiveFrom, p.ActiveUntil = fromMillis(from), fromMillis(until)

		i, ok := index[serverID]
		if !ok {
			continue
		}
		servers[i].PunishmentHistory.Entries = append(servers[i].PunishmentHistory.Entries, p)
	}

	return servers, pRows.Err()
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func joinCapabilities(caps []models.Capability) string {
	parts := make([]string, len(caps))
	for i, c := range caps {
		parts[i] = string(c)
	}

	return strings.Join(parts, ",")
}

func splitCapabilities(v string) []models.Capability {
	if v == "" {
		return nil
	}

	var caps []models.Capability
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			caps = append(caps, models.Capability(part))
		}
	}

	return caps
}
