// Package maintenance provides out-of-band administration of player and server records.
// It runs against the database while the service is stopped.
package maintenance

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/warden/internal/config"
	"github.com/woozymasta/warden/internal/models"
	"github.com/woozymasta/warden/internal/punish"
)

// ErrBadAssignment is returned for capability arguments not in HWID=capability form.
var ErrBadAssignment = errors.New("expected HWID=capability")

// Run checks if any maintenance flags are set and executes the corresponding tasks.
// Returns true if a maintenance task was executed (indicating the program should exit).
func Run(cfg *config.Config, store *punish.Store, out io.Writer) (bool, error) {
	m := cfg.Maintenance

	switch {
	case m.VerifyServer != "":
		return true, setVerified(store, m.VerifyServer, true)
	case m.UnverifyServer != "":
		return true, setVerified(store, m.UnverifyServer, false)
	case m.Grant != "":
		return true, changeCapability(store, m.Grant, true)
	case m.Revoke != "":
		return true, changeCapability(store, m.Revoke, false)
	case m.ListServers:
		return true, ListServers(store, out, time.Now())
	default:
		return false, nil
	}
}

func setVerified(store *punish.Store, id string, verified bool) error {
	srv, err := store.SetVerified(id, verified)
	if err != nil {
		return fmt.Errorf("server %s: %w", id, err)
	}

	log.Info().Str("server", srv.ID).Str("name", srv.Name).Bool("verified", verified).Msg("Server verification changed")

	return nil
}

func changeCapability(store *punish.Store, assignment string, grant bool) error {
	hwid, capability, err := parseAssignment(assignment)
	if err != nil {
		return err
	}

	change := store.RevokeCapability
	if grant {
		change = store.GrantCapability
	}

	p, err := change(hwid, capability)
	if err != nil {
		return fmt.Errorf("player %s: %w", hwid, err)
	}

	log.Info().Str("hwid", p.HWID).Str("capability", string(capability)).Bool("grant", grant).Msg("Capability changed")

	return nil
}

// parseAssignment splits "HWID=capability". HWIDs may contain colons but not '='.
func parseAssignment(v string) (string, models.Capability, error) {
	hwid, c, ok := strings.Cut(v, "=")
	hwid, c = strings.TrimSpace(hwid), strings.TrimSpace(c)
	if !ok || hwid == "" || c == "" {
		return "", "", fmt.Errorf("%q: %w", v, ErrBadAssignment)
	}

	capability := models.Capability(c)
	if !capability.Known() {
		return "", "", fmt.Errorf("unknown capability %q", c)
	}

	return hwid, capability, nil
}

// ListServers prints one line per known server.
func ListServers(store *punish.Store, out io.Writer, now time.Time) error {
	servers := store.Servers()

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tADDRESS\tVERIFIED\tLISTED\tPUNISHMENT")
	for _, s := range servers {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s:%d\t%t\t%t\t%s\n",
			s.ID, s.Name, s.IP, s.Port, s.IsVerified, store.IsListed(s.Token), punishmentSummary(s.PunishmentHistory, now))
	}
	_, _ = fmt.Fprintf(w, "%s servers\n", humanize.Comma(int64(len(servers))))

	return w.Flush()
}

// punishmentSummary describes the strongest active punishment.
func punishmentSummary(h models.PunishmentHistory, now time.Time) string {
	var (
		worst models.Punishment
		found bool
	)
	for _, p := range h.Entries {
		if p.Active(now) && (!found || p.Severity > worst.Severity) {
			worst, found = p, true
		}
	}

	switch {
	case !found:
		return "-"
	case worst.IsPermanent:
		return worst.Severity.String() + " (permanent)"
	default:
		return worst.Severity.String() + " (ends " + humanize.RelTime(worst.ActiveUntil, now, "ago", "from now") + ")"
	}
}
