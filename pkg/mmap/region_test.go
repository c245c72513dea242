package mmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/strata/pkg/errors"
)

func writeFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestOpenMapsFile(t *testing.T) {
	want := []byte("row group payload bytes")
	r, err := Open(writeFile(t, want), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	assert.Equal(t, len(want), r.Len())
	assert.Equal(t, want, r.Bytes())
	assert.NoError(t, r.Advise(Sequential))
	assert.NoError(t, r.Advise(Random))

	s, err := r.Slice(4, 5)
	require.NoError(t, err)
	assert.Equal(t, "group", string(s))
	assert.Equal(t, 5, cap(s))

	_, err = r.Slice(20, 10)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCorrupt))
	_, err = r.Slice(^uint64(0), 2)
	assert.Error(t, err)

	require.NoError(t, r.Release())
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))
}

func TestEmptyFile(t *testing.T) {
	r, err := Open(writeFile(t, nil))
	require.NoError(t, err)
	assert.Equal(t, 0, r.Len())
	assert.NoError(t, r.Advise(WillNeed))
	assert.NoError(t, r.Release())
}

func TestReferenceCounting(t *testing.T) {
	r, err := Open(writeFile(t, []byte("abcdefgh")))
	require.NoError(t, err)

	require.NoError(t, r.Acquire())
	require.NoError(t, r.Acquire())
	assert.Equal(t, int64(3), r.Refs())

	// the opener lets go first; borrowers keep the mapping alive
	require.NoError(t, r.Release())
	assert.Equal(t, "abcdefgh", string(r.Bytes()))

	require.NoError(t, r.Release())
	require.NoError(t, r.Release())
	assert.Equal(t, int64(0), r.Refs())
	assert.Nil(t, r.Bytes())

	assert.ErrorIs(t, r.Acquire(), ErrReleased)
	assert.ErrorIs(t, r.Release(), ErrReleased)
}
