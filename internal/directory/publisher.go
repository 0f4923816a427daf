package directory

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/warden/internal/models"
)

// Publisher rewrites the directory file consumed by clients and CDNs.
type Publisher struct {
	path   string
	mu     sync.Mutex
	digest uint64
}

// NewPublisher returns a publisher writing to path, or nil when path is empty.
func NewPublisher(path string) *Publisher {
	if path == "" {
		return nil
	}

	return &Publisher{path: path}
}

// Path returns the published file path.
func (p *Publisher) Path() string {
	return p.path
}

// Publish writes the listings unless the content is unchanged since the last write.
// Failures are logged; the in-memory directory stays authoritative.
func (p *Publisher) Publish(listings []models.Listing) {
	if err := p.write(Published(listings), false); err != nil {
		log.Error().Err(err).Str("path", p.path).Msg("Failed to publish server directory")
	}
}

// Clear writes the "no servers" marker regardless of the last digest.
func (p *Publisher) Clear() error {
	return p.write(Published(nil), true)
}

func (p *Publisher) write(listings []models.Listing, force bool) error {
	body, err := json.MarshalIndent(listings, "", "  ")
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	sum := xxhash.Sum64(body)
	if !force && sum == p.digest {
		return nil
	}

	if err := writeAtomic(p.path, body); err != nil {
		return err
	}
	p.digest = sum

	log.Debug().Str("path", p.path).Int("listings", len(listings)).Msg("Server directory published")

	return nil
}

// writeAtomic writes through a temporary file and renames it over path.
func writeAtomic(path string, body []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, body, 0o644); err != nil { //nolint:gosec
		return err
	}

	return os.Rename(tmpPath, path)
}
