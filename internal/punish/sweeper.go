package punish

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/warden/internal/metrics"
)

// SweepResult counts what one sweep pass changed.
type SweepResult struct {
	Bans        int
	Punishments int
	Evicted     int
}

// Removed returns the number of expired entries dropped.
func (r SweepResult) Removed() int {
	return r.Bans + r.Punishments
}

// Sweep expires non-permanent entries whose ActiveUntil is before now, recomputes
// permanent flags and evicts listings that are no longer allowed. Each record is
// handled in its own short critical section; the store persists once if anything expired.
func (s *Store) Sweep(now time.Time) (SweepResult, error) {
	var res SweepResult

	for _, hwid := range s.playerKeys() {
		s.mu.Lock()
		if p, ok := s.players[hwid]; ok {
			res.Bans += p.BanHistory.Expire(now)
		}
		s.mu.Unlock()
	}

	for _, id := range s.serverKeys() {
		s.mu.Lock()
		if srv, ok := s.servers[id]; ok {
			res.Punishments += srv.PunishmentHistory.Expire(now)
			if !listable(srv, now) && s.dir.Evict(srv.Token) {
				res.Evicted++
			}
		}
		s.mu.Unlock()
	}

	if res.Removed() == 0 {
		return res, nil
	}

	return res, s.Persist()
}

func (s *Store) playerKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.players))
	for k := range s.players {
		keys = append(keys, k)
	}

	return keys
}

func (s *Store) serverKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.servers))
	for k := range s.servers {
		keys = append(keys, k)
	}

	return keys
}

// Sweeper runs Store.Sweep on a fixed period.
type Sweeper struct {
	store    *Store
	now      func() time.Time
	interval time.Duration
}

// NewSweeper creates a sweeper; a non-positive interval falls back to one second.
func NewSweeper(store *Store, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Second
	}

	return &Sweeper{store: store, interval: interval, now: time.Now}
}

// Run sweeps every interval until ctx is done, then persists one last time.
func (w *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	log.Debug().Dur("interval", w.interval).Msg("Punishment sweeper started")

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("Punishment sweeper shutting down")
			return w.store.Persist()
		case <-ticker.C:
			w.Tick()
		}
	}
}

// Tick performs one sweep pass and reports it.
func (w *Sweeper) Tick() SweepResult {
	start := time.Now()

	res, err := w.store.Sweep(w.now())
	if err != nil {
		log.Error().Err(err).Msg("Failed to persist after sweep")
	}

	metrics.SweepRemoved.WithLabelValues("ban").Add(float64(res.Bans))
	metrics.SweepRemoved.WithLabelValues("punishment").Add(float64(res.Punishments))
	metrics.Listings.Set(float64(len(w.store.Listings())))

	if res.Removed() > 0 || res.Evicted > 0 {
		log.Info().
			Int("bans", res.Bans).
			Int("punishments", res.Punishments).
			Int("evicted", res.Evicted).
			Dur("duration", time.Since(start)).
			Msg("Expired punishments swept")
	}

	return res
}
