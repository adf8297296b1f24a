package preset

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWatchPicksUpNewPresetFile(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Watch(ctx))

	p := createGeneralPreset()
	p.Name = "Hot Reloaded"
	data, err := json.Marshal(p)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hot.json"), data, 0o600))

	assert.Eventually(t, func() bool {
		got, err := m.Get("hot")
		return err == nil && got.Name == "Hot Reloaded"
	}, 3*time.Second, 25*time.Millisecond, "new preset file should become visible without an explicit reload")
}

func TestWatchPicksUpRemoval(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, nil)
	require.NoError(t, err)

	p := createGeneralPreset()
	p.Name = "Ephemeral"
	data, err := json.Marshal(p)
	require.NoError(t, err)
	path := filepath.Join(dir, "ephemeral.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	m.Reload()
	_, err = m.Get("ephemeral")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Watch(ctx))

	require.NoError(t, os.Remove(path))

	assert.Eventually(t, func() bool {
		_, err := m.Get("ephemeral")
		return err != nil
	}, 3*time.Second, 25*time.Millisecond, "deleted preset file should disappear from the manager")
}

func TestWatchUnknownDirectory(t *testing.T) {
	m, err := NewManager(t.TempDir(), nil)
	require.NoError(t, err)
	m.dir = filepath.Join(m.dir, "gone")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	assert.Error(t, m.Watch(ctx))
}
