package shim

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/go-git/go-billy/v5"

	"github.com/ajaxzhan/mirrorfs/internal/logging"
)

// handle is an open host file registered by Open or Create.
type handle struct {
	id    uint64
	path  string // virtual path at open time
	file  billy.File
	flags int
	mu    sync.Mutex // guards the file offset for hosts without WriteAt

	refs      atomic.Int32
	released  atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// canWrite reports whether the handle was opened for writing.
func (h *handle) canWrite() bool {
	return h.flags&accMode != os.O_RDONLY
}

func (h *handle) close() error {
	h.closeOnce.Do(func() {
		h.closeErr = h.file.Close()
	})
	return h.closeErr
}

// handleTable maps driver file handles to open host files. IDs start at 1
// and are never reused; 0 means "no handle".
type handleTable struct {
	mu      sync.RWMutex
	nextID  uint64
	entries map[uint64]*handle
}

func newHandleTable() *handleTable {
	return &handleTable{
		nextID:  1,
		entries: make(map[uint64]*handle),
	}
}

// register stores an open file and returns its handle ID.
func (t *handleTable) register(path string, f billy.File, flags int) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++
	t.entries[id] = &handle{id: id, path: path, file: f, flags: flags}
	return id
}

// acquire pins a handle for the duration of a call. It fails for 0, unknown
// and released IDs. Every successful acquire must be paired with put.
func (t *handleTable) acquire(id uint64) (*handle, bool) {
	if id == 0 {
		return nil, false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	h, ok := t.entries[id]
	if !ok {
		return nil, false
	}
	h.refs.Add(1)
	return h, true
}

// put unpins a handle; the last holder of a released handle closes it.
func (t *handleTable) put(h *handle) {
	if h.refs.Add(-1) == 0 && h.released.Load() {
		h.close()
	}
}

// release removes a handle from the table. The host file is closed now if
// no call holds it, otherwise by the last put.
func (t *handleTable) release(id uint64) (bool, error) {
	t.mu.Lock()
	h, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
		h.released.Store(true)
	}
	t.mu.Unlock()

	if !ok {
		return false, nil
	}
	if h.refs.Load() == 0 {
		return true, h.close()
	}
	return true, nil
}

// closeAll releases every handle and returns how many were open.
func (t *handleTable) closeAll() int {
	t.mu.RLock()
	ids := make([]uint64, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	t.mu.RUnlock()

	for _, id := range ids {
		t.mu.RLock()
		h, ok := t.entries[id]
		t.mu.RUnlock()
		if !ok {
			continue
		}
		logging.Debug("closing open handle",
			logging.Int64("fh", int64(h.id)),
			logging.String("path", h.path),
		)
		if _, err := t.release(id); err != nil {
			logging.Warn("failed to close handle",
				logging.Int64("fh", int64(h.id)),
				logging.String("path", h.path),
				logging.Err(err),
			)
		}
	}
	return len(ids)
}

// len returns the number of registered handles.
func (t *handleTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
