package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/pytutor/internal/model"
	"github.com/phobologic/pytutor/internal/sandbox"
)

func TestKeyDependsOnSourceAndParams(t *testing.T) {
	t.Parallel()

	p := Params{MaxSteps: 200, StableIDs: true, MaxDepth: 1000}
	a, err := Key("x = 1\n", p)
	require.NoError(t, err)
	again, err := Key("x = 1\n", p)
	require.NoError(t, err)
	assert.Equal(t, a, again)
	assert.Len(t, a, 16)

	other, err := Key("x = 2\n", p)
	require.NoError(t, err)
	assert.NotEqual(t, a, other)

	q := p
	q.StableIDs = false
	noIDs, err := Key("x = 1\n", q)
	require.NoError(t, err)
	assert.NotEqual(t, a, noIDs)
}

func TestGetMissing(t *testing.T) {
	t.Parallel()

	c, err := Open(t.TempDir())
	require.NoError(t, err)
	_, err = c.Get("0000000000000000")
	assert.ErrorIs(t, err, ErrNotCached)
}

func TestNilCache(t *testing.T) {
	t.Parallel()

	var c *Cache
	require.NoError(t, c.Put("k", model.Trace{}))
	_, err := c.Get("k")
	assert.ErrorIs(t, err, ErrNotCached)
}

func TestPutGetPreservesJSON(t *testing.T) {
	t.Parallel()

	src := "class P:\n    pass\np = P()\np.v = {'a': [1, 2.5, None]}\nbig = [2 ** 70, -10 ** 20]\ndef f(n):\n    return n\nf(1)\n"
	trace := sandbox.Run(context.Background(), src, sandbox.Config{StableIDs: true, Logger: zerolog.Nop()})

	c, err := Open(filepath.Join(t.TempDir(), "nested"))
	require.NoError(t, err)
	key, err := Key(src, Params{MaxSteps: 200, StableIDs: true})
	require.NoError(t, err)
	require.NoError(t, c.Put(key, trace))

	got, err := c.Get(key)
	require.NoError(t, err)

	want, err := json.Marshal(trace)
	require.NoError(t, err)
	have, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(have))
	assert.Contains(t, string(have), "1180591620717411303424")
}

func TestPutLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, c.Put("abc", model.Trace{{Event: model.InstructionLimitReached, ExceptionMsg: "stop"}}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "abc.mp", entries[0].Name())
}

func TestCorruptEntry(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.mp"), []byte{0xc1}, 0o644))
	_, err = c.Get("bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotCached)
}
