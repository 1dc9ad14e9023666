package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/sandbox"
)

func TestSaveLoad(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "state", "snapshot.zst"), nil)
	ctx := context.Background()

	snap := sandbox.Snapshot{
		Version:   3,
		Globals:   map[string]any{"value": float64(5), "list": []any{"a", true}},
		Instances: map[string]map[string]any{"a": {"count": float64(2)}},
	}
	require.NoError(t, f.Save(ctx, snap))

	got, err := f.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap, got)

	snap.Version = 4
	require.NoError(t, f.Save(ctx, snap))
	got, err = f.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Version)

	entries, err := os.ReadDir(filepath.Dir(f.Path()))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestLoadMissing(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(t.TempDir(), "snapshot.zst")},
		{"missing directory", filepath.Join(t.TempDir(), "nope", "snapshot.zst")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFile(tt.path, nil).Load(context.Background())
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.zst")
	require.NoError(t, os.WriteFile(path, []byte("not zstd"), 0o644))

	_, err := NewFile(path, nil).Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestSandboxRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := NewFile(filepath.Join(t.TempDir(), "snapshot.zst"), nil)

	src, err := sandbox.New(sandbox.DefaultConfig())
	require.NoError(t, err)
	defer src.Close()
	post(t, src, protocol.Eval{Header: protocol.Header{MessageID: "1"}, Script: "{ greeting = 'hi'; this.n = 1; }", InstanceID: "x"})

	snap, err := src.Snapshot()
	require.NoError(t, err)
	require.NoError(t, f.Save(ctx, snap))

	loaded, err := f.Load(ctx)
	require.NoError(t, err)
	dst, err := sandbox.New(sandbox.DefaultConfig())
	require.NoError(t, err)
	defer dst.Close()
	require.NoError(t, dst.Restore(loaded))

	res := post(t, dst, protocol.Eval{Header: protocol.Header{MessageID: "2"}, Script: "greeting + this.n", InstanceID: "x"})
	assert.Equal(t, "hi1", res.Result)
}

func post(t *testing.T, sb *sandbox.Sandbox, req protocol.Eval) protocol.Result {
	t.Helper()
	var out protocol.Message
	stop := sb.Listen(func(m protocol.Message) error {
		out = m
		return nil
	})
	defer stop()

	require.NoError(t, sb.Post(req))
	res, ok := out.(protocol.Result)
	require.True(t, ok, "got %#v", out)
	return res
}
