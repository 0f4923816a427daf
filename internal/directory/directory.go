// Package directory holds the verified-server listings published to clients.
package directory

import (
	"cmp"
	"slices"
	"time"

	"github.com/woozymasta/warden/internal/models"
)

// NoServersMarker names the single entry published when nothing is listed.
const NoServersMarker = "NO_SERVERS_AVAILABLE"

// Directory maps server tokens to listings.
// It is not safe for concurrent use; the owner serializes access.
type Directory struct {
	listings  map[string]models.Listing
	publisher *Publisher
}

// New creates an empty directory. A nil publisher disables the side-channel file.
func New(publisher *Publisher) *Directory {
	return &Directory{
		listings:  make(map[string]models.Listing),
		publisher: publisher,
	}
}

// Upsert stores or replaces the listing for token. The file is republished
// only when something other than UpdatedAt changed.
func (d *Directory) Upsert(token string, l models.Listing) {
	prev, ok := d.listings[token]
	d.listings[token] = l

	if ok && sameContent(prev, l) {
		return
	}
	d.publish()
}

// Evict removes the listing for token. It reports whether a listing was removed.
func (d *Directory) Evict(token string) bool {
	if _, ok := d.listings[token]; !ok {
		return false
	}

	delete(d.listings, token)
	d.publish()

	return true
}

// Has reports whether token is listed.
func (d *Directory) Has(token string) bool {
	_, ok := d.listings[token]
	return ok
}

// Len returns the number of listings.
func (d *Directory) Len() int {
	return len(d.listings)
}

// Tokens returns the listed tokens.
func (d *Directory) Tokens() []string {
	tokens := make([]string, 0, len(d.listings))
	for token := range d.listings {
		tokens = append(tokens, token)
	}

	return tokens
}

// Snapshot returns a copy of the listings ordered by name, then server ID.
func (d *Directory) Snapshot() []models.Listing {
	out := make([]models.Listing, 0, len(d.listings))
	for _, l := range d.listings {
		out = append(out, l)
	}

	slices.SortFunc(out, func(a, b models.Listing) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ServerID, b.ServerID))
	})

	return out
}

func sameContent(a, b models.Listing) bool {
	a.UpdatedAt, b.UpdatedAt = time.Time{}, time.Time{}
	return a == b
}

func (d *Directory) publish() {
	if d.publisher == nil {
		return
	}

	d.publisher.Publish(d.Snapshot())
}

// Published returns listings as clients see them: the marker entry when empty.
func Published(listings []models.Listing) []models.Listing {
	if len(listings) == 0 {
		return []models.Listing{{Name: NoServersMarker}}
	}

	return listings
}
