package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachePayload struct {
	Name   string
	Counts [5]int
	Values []float64
}

func TestSaveLoadGobRoundtrip(t *testing.T) {
	// Das Zielverzeichnis existiert noch nicht und wird mit angelegt.
	path := filepath.Join(t.TempDir(), "cache", "scores.gob.gz")
	in := cachePayload{Name: "test", Counts: [5]int{1, 2, 3, 4, 5}, Values: []float64{1.5, -9, 11}}

	require.NoError(t, SaveGob(path, &in))

	var out cachePayload
	require.NoError(t, LoadGob(path, &out))
	assert.Equal(t, in, out)
}

func TestSaveGobOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.gob.gz")
	require.NoError(t, SaveGob(path, &cachePayload{Name: "alt"}))
	require.NoError(t, SaveGob(path, &cachePayload{Name: "neu"}))

	var out cachePayload
	require.NoError(t, LoadGob(path, &out))
	assert.Equal(t, "neu", out.Name)
}

func TestLoadGobMissingFile(t *testing.T) {
	var out cachePayload
	err := LoadGob(filepath.Join(t.TempDir(), "fehlt.gob.gz"), &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadGobCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kaputt.gob.gz")
	require.NoError(t, os.WriteFile(path, []byte("kein gzip"), 0o644))

	var out cachePayload
	err := LoadGob(path, &out)
	require.Error(t, err)
	assert.NotErrorIs(t, err, os.ErrNotExist)
}

func TestSaveGobLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scores.gob.gz")
	require.NoError(t, SaveGob(path, &cachePayload{Name: "test"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "scores.gob.gz", entries[0].Name())
}
