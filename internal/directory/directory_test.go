package directory

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/woozymasta/warden/internal/models"
)

func readPublished(t *testing.T, path string) []models.Listing {
	t.Helper()

	body, err := os.ReadFile(path)
	require.NoError(t, err)

	var listings []models.Listing
	require.NoError(t, json.Unmarshal(body, &listings))

	return listings
}

func TestDirectoryPublishesChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.json")
	dir := New(NewPublisher(path))

	dir.Upsert("tok-b", models.Listing{ServerID: "b", Name: "Bravo"})
	dir.Upsert("tok-a", models.Listing{ServerID: "a", Name: "Alpha"})

	listings := readPublished(t, path)
	require.Len(t, listings, 2)
	require.Equal(t, "Alpha", listings[0].Name)
	require.True(t, dir.Has("tok-a"))

	require.True(t, dir.Evict("tok-a"))
	require.False(t, dir.Evict("tok-a"))
	require.True(t, dir.Evict("tok-b"))

	listings = readPublished(t, path)
	require.Len(t, listings, 1)
	require.Equal(t, NoServersMarker, listings[0].Name)
	require.Zero(t, dir.Len())
}

func TestHeartbeatDoesNotRepublish(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.json")
	dir := New(NewPublisher(path))
	first := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	dir.Upsert("tok-a", models.Listing{ServerID: "a", Name: "Alpha", PlayersActive: 3, UpdatedAt: first})
	dir.Upsert("tok-a", models.Listing{ServerID: "a", Name: "Alpha", PlayersActive: 3, UpdatedAt: first.Add(time.Second)})

	listings := readPublished(t, path)
	require.Len(t, listings, 1)
	require.Equal(t, first, listings[0].UpdatedAt)
	require.Equal(t, first.Add(time.Second), dir.Snapshot()[0].UpdatedAt)

	dir.Upsert("tok-a", models.Listing{ServerID: "a", Name: "Alpha", PlayersActive: 4, UpdatedAt: first.Add(2 * time.Second)})

	listings = readPublished(t, path)
	require.Equal(t, 4, listings[0].PlayersActive)
	require.Equal(t, first.Add(2*time.Second), listings[0].UpdatedAt)
}

func TestPublisherClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "servers.json")
	pub := NewPublisher(path)
	pub.Publish([]models.Listing{{ServerID: "a", Name: "Alpha"}})

	require.NoError(t, pub.Clear())

	listings := readPublished(t, path)
	require.Equal(t, []models.Listing{{Name: NoServersMarker}}, listings)
}

func TestNilPublisher(t *testing.T) {
	require.Nil(t, NewPublisher(""))

	dir := New(nil)
	dir.Upsert("tok", models.Listing{Name: "x"})
	require.Equal(t, 1, dir.Len())
	require.Equal(t, []string{"tok"}, dir.Tokens())
}
