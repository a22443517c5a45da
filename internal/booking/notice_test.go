package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotices_ExpireAndDismiss(t *testing.T) {
	var ns notices
	t0 := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
	info := ns.add(LevelInfo, "reconnected", t0)
	errN := ns.add(LevelError, "booking failed", t0)
	require.NotEqual(t, info.ID, errN.ID)

	assert.Len(t, ns.active(t0.Add(time.Second)), 2)

	// info times out before error
	active := ns.active(t0.Add(5 * time.Second))
	require.Len(t, active, 1)
	assert.Equal(t, errN.ID, active[0].ID)

	assert.True(t, ns.dismiss(errN.ID))
	assert.False(t, ns.dismiss(errN.ID))
	assert.Empty(t, ns.active(t0.Add(5*time.Second)))
}
