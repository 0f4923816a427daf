package fake

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/woozymasta/warden/internal/models"
	"github.com/woozymasta/warden/internal/punish"
)

type memSnapshot struct{}

func (memSnapshot) Load() ([]models.Player, []models.Server, error) { return nil, nil, nil }
func (memSnapshot) Save([]models.Player, []models.Server) error { return nil }
func (memSnapshot) Fresh() bool { return false }

func TestGenerateData(t *testing.T) {
	store := punish.NewStore(memSnapshot{}, nil)

	GenerateData(store, 50)

	st := store.Stats()
	require.LessOrEqual(t, st.Players, 50)
	require.Positive(t, st.Players)
	require.Positive(t, st.Servers)
	require.LessOrEqual(t, st.Listed, st.Verified)

	for _, p := range store.Players() {
		require.Regexp(t, `^([0-9A-F]{2}:){5}[0-9A-F]{2}$`, p.HWID)
		require.NotEmpty(t, p.Token)
	}
}
