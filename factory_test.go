package yas

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactoryCreateThenOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.yas")

	f := NewFactory()
	pv, err := f.Create(path, 0, 0)
	require.NoError(t, err)

	require.NoError(t, pv.Put("answer", int64(42)))
	require.NoError(t, pv.Close())

	reopened, err := f.Open(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	got, err := reopened.Get("answer")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)
}

func TestFactoryDedupesConcurrentOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.yas")

	f := NewFactory()
	pv, err := f.Create(path, 0, 0)
	require.NoError(t, err)
	require.NoError(t, pv.Put("k", int64(1)))

	second, err := f.Open(path)
	require.NoError(t, err)

	assert.Same(t, pv, second, "two Opens of the same canonical path must return the same *PVManager")
}

func TestFactoryForgetsPVAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.yas")

	f := NewFactory()
	pv, err := f.Create(path, 0, 0)
	require.NoError(t, err)
	require.NoError(t, pv.Close())

	reopened, err := f.Open(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	assert.NotSame(t, pv, reopened, "Close must unregister the PV so a later Open boots a fresh handle")
}
