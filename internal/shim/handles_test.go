package shim

import (
	"os"
	"sync"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemFile(t *testing.T, name string) billy.File {
	t.Helper()
	f, err := memfs.New().OpenFile(name, os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	return f
}

func TestHandleTable_RegisterAndRelease(t *testing.T) {
	t.Parallel()

	table := newHandleTable()
	id1 := table.register("a", openMemFile(t, "/a"), os.O_RDWR)
	id2 := table.register("b", openMemFile(t, "/b"), os.O_RDWR)

	assert.EqualValues(t, 1, id1)
	assert.EqualValues(t, 2, id2)
	assert.Equal(t, 2, table.len())

	ok, err := table.release(id1)
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, 1, table.len())

	ok, _ = table.release(id1)
	assert.False(t, ok, "double release")

	id3 := table.register("c", openMemFile(t, "/c"), os.O_RDWR)
	assert.EqualValues(t, 3, id3, "ids are never reused")
}

func TestHandleTable_AcquireUnknown(t *testing.T) {
	t.Parallel()

	table := newHandleTable()
	_, ok := table.acquire(0)
	assert.False(t, ok)
	_, ok = table.acquire(42)
	assert.False(t, ok)
}

func TestHandleTable_ReleaseWhileInUse(t *testing.T) {
	t.Parallel()

	table := newHandleTable()
	f := openMemFile(t, "/busy")
	id := table.register("busy", f, os.O_RDWR)

	h, ok := table.acquire(id)
	require.True(t, ok)

	ok, err := table.release(id)
	require.True(t, ok)
	require.NoError(t, err)

	// Still pinned: the file stays usable until put.
	_, err = h.file.Write([]byte("x"))
	assert.NoError(t, err)

	_, ok = table.acquire(id)
	assert.False(t, ok, "released handles cannot be acquired")

	table.put(h)
	_, err = h.file.Write([]byte("y"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestHandleTable_CloseAll(t *testing.T) {
	t.Parallel()

	table := newHandleTable()
	files := []billy.File{openMemFile(t, "/1"), openMemFile(t, "/2"), openMemFile(t, "/3")}
	for i, f := range files {
		table.register(f.Name(), f, i)
	}

	assert.Equal(t, 3, table.closeAll())
	assert.Equal(t, 0, table.len())
	for _, f := range files {
		assert.ErrorIs(t, f.Close(), os.ErrClosed)
	}
}

func TestHandleTable_Concurrent(t *testing.T) {
	t.Parallel()

	table := newHandleTable()
	f := openMemFile(t, "/shared")
	id := table.register("shared", f, os.O_RDWR)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if h, ok := table.acquire(id); ok {
					table.put(h)
				}
				table.register("shared", f, os.O_RDWR)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1+32*100, table.len())
	h, ok := table.acquire(id)
	require.True(t, ok)
	assert.EqualValues(t, 1, h.refs.Load())
	table.put(h)
}

func TestHandle_CanWrite(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		flags int
		want  bool
	}{
		{os.O_RDONLY, false},
		{os.O_RDONLY | os.O_TRUNC, false},
		{os.O_WRONLY, true},
		{os.O_RDWR, true},
		{os.O_RDWR | os.O_APPEND, true},
	} {
		h := &handle{flags: tc.flags}
		assert.Equal(t, tc.want, h.canWrite(), "flags %#x", tc.flags)
	}
}
