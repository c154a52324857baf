// ABOUTME: Smoke tests for runtime assembly.
// ABOUTME: Covers in-memory and durable wiring end to end.

package runtime

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/aide-runtime/internal/config"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_InMemory(t *testing.T) {
	rt, err := New(context.Background(), config.Default(), discard())
	require.NoError(t, err)
	defer rt.Close()

	// Built-in skills are registered.
	for _, name := range []string{"clock", "notes", "smalltalk"} {
		_, ok := rt.Registry.Schema(name)
		assert.True(t, ok, "skill %s should be registered", name)
	}

	// A full turn flows through dialogue, flow, and the registry.
	sessionID := rt.Dialogue.StartSession("alice", "phone-1", map[string]any{"device_type": "mobile"})
	turn, err := rt.Dialogue.ProcessTurn(context.Background(), sessionID, "what time is it?", nil)
	require.NoError(t, err)
	assert.True(t, turn.Success)
	assert.NotEmpty(t, turn.SystemResponse)
}

func TestNew_DefaultConfigAllowsNotes(t *testing.T) {
	rt, err := New(context.Background(), config.Default(), discard())
	require.NoError(t, err)
	defer rt.Close()

	// The default config's baseline grants must cover the notes built-in,
	// so memory works out of the box for any user.
	sessionID := rt.Dialogue.StartSession("alice", "desk-1", map[string]any{"device_type": "desktop"})

	turn, err := rt.Dialogue.ProcessTurn(context.Background(), sessionID, "remember my wifi password is hunter2", nil)
	require.NoError(t, err)
	assert.True(t, turn.Success, "save failed: %s", turn.ErrorMessage)
	assert.NotContains(t, turn.SystemResponse, "Missing permissions")

	turn, err = rt.Dialogue.ProcessTurn(context.Background(), sessionID, "what is my wifi password?", nil)
	require.NoError(t, err)
	assert.True(t, turn.Success)
	assert.Contains(t, turn.SystemResponse, "hunter2")
}

func TestNew_Durable(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "runtime.db")

	rt, err := New(context.Background(), cfg, discard())
	require.NoError(t, err)

	sessionID := rt.Dialogue.StartSession("alice", "phone-1", nil)
	_, err = rt.Dialogue.ProcessTurn(context.Background(), sessionID, "hello", nil)
	require.NoError(t, err)

	// History is served from the store.
	turns, err := rt.Dialogue.History(context.Background(), sessionID, 10)
	require.NoError(t, err)
	assert.Len(t, turns, 1)

	require.NoError(t, rt.Close())
}

func TestClose_Idempotent(t *testing.T) {
	rt, err := New(context.Background(), config.Default(), discard())
	require.NoError(t, err)

	require.NoError(t, rt.Close())
	// Dialogue.Close and Bus.Stop tolerate repeats; only the store errors
	// on double close, and it is nil here.
	require.NoError(t, rt.Close())
}
