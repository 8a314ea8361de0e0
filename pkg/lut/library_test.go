package lut

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLibrary(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "teal.cube"), []byte("TITLE \"Teal\"\n"+cubeText(2)), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plain.CUBE"), []byte(cubeText(3)), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.cube"), []byte("LUT_3D_SIZE 4\n0 0 0\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.cube"), []byte(cubeText(2)), 0o644))

	lib, err := OpenLibrary(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"plain", "teal"}, lib.Names())

	teal, ok := lib.Get("teal")
	require.True(t, ok)
	assert.Equal(t, "Teal", teal.Title)

	plain, ok := lib.Get("plain")
	require.True(t, ok)
	assert.Equal(t, "plain", plain.Title)
	assert.Equal(t, 3, plain.Size)

	_, ok = lib.Get("broken")
	assert.False(t, ok)
}

func TestLibraryInstall(t *testing.T) {
	lib, err := OpenLibrary(filepath.Join(t.TempDir(), "presets"))
	require.NoError(t, err)
	assert.Empty(t, lib.Names())

	src := filepath.Join(t.TempDir(), "mono.cube")
	require.NoError(t, os.WriteFile(src, []byte(cubeText(2)), 0o644))

	name, l, err := lib.Install(src)
	require.NoError(t, err)
	assert.Equal(t, "mono", name)
	assert.Equal(t, 2, l.Size)
	assert.FileExists(t, filepath.Join(lib.Dir(), "mono.cube"))
	assert.Equal(t, []string{"mono"}, lib.Names())

	bad := filepath.Join(t.TempDir(), "bad.cube")
	require.NoError(t, os.WriteFile(bad, []byte("1 2 3\n1 2 3\n"), 0o644))
	_, _, err = lib.Install(bad)
	assert.ErrorIs(t, err, ErrSize)
	assert.NoFileExists(t, filepath.Join(lib.Dir(), "bad.cube"))
}

func TestLibraryWatch(t *testing.T) {
	dir := t.TempDir()
	lib, err := OpenLibrary(dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lib.Watch(ctx) }()

	// give the watcher a moment to register
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "late.cube"), []byte(cubeText(2)), 0o644))

	require.Eventually(t, func() bool {
		_, ok := lib.Get("late")
		return ok
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
