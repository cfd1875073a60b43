package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.webm")
	require.NoError(t, os.WriteFile(path, []byte("opus"), 0o644))

	stream, err := (&fileDevice{path: path}).Open(context.Background())
	require.NoError(t, err)

	require.NoError(t, stream.Pause())
	chunk, err := stream.Flush()
	require.NoError(t, err)
	require.Empty(t, chunk)

	require.NoError(t, stream.Resume())
	chunk, err = stream.Flush()
	require.NoError(t, err)
	require.Equal(t, []byte("opus"), chunk)

	chunk, err = stream.Flush()
	require.NoError(t, err)
	require.Empty(t, chunk, "audio is delivered once")

	require.NoError(t, stream.Close())
	_, err = stream.Flush()
	require.ErrorIs(t, err, errStreamClosed)
}

func TestFileDevice_MissingFile(t *testing.T) {
	_, err := (&fileDevice{path: filepath.Join(t.TempDir(), "nope")}).Open(context.Background())
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestRun_UnknownCommand(t *testing.T) {
	require.ErrorContains(t, run([]string{"--markers", filepath.Join(t.TempDir(), "m.db"), "dance"}), "unknown command")
	require.ErrorContains(t, run(nil), "missing command")
}
