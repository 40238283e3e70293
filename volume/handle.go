/*
Copyright (C) 2026  voxcp Contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package volume

import (
	"fmt"
	"sync/atomic"
)

// GridHandle is one consumer's view of a grid. File-backed handles
// point into a FileCache entry; procedurally built grids are private
// and always count as loaded.
type GridHandle struct {
	grid  *Grid
	cache *FileCache
	entry *cacheEntry
	// has THIS handle completed the tree-user promotion? The entry's
	// tree may be resident through another user while this is still
	// false; only after Load flips it is reading the tree safe here.
	loaded atomic.Bool
}

// NewPrivateGridHandle wraps a non-file-backed grid.
func NewPrivateGridHandle(grid *Grid) *GridHandle {
	h := &GridHandle{grid: grid}
	h.loaded.Store(true)
	return h
}

// newCachedHandle attaches to the cache entry for (filepath, name) as
// a metadata user, creating the entry from the enumerated metadata
// grid if needed.
func newCachedHandle(cache *FileCache, filepath string, meta *Grid) *GridHandle {
	h := &GridHandle{cache: cache}
	h.entry = cache.addMetadataUser(filepath, meta.Name(), func() *Grid { return meta })
	h.grid = h.entry.grid
	return h
}

// Duplicate registers a sibling handle of the same class. The copy
// starts with the same loadedness as the source.
func (h *GridHandle) Duplicate() *GridHandle {
	dup := &GridHandle{grid: h.grid, cache: h.cache, entry: h.entry}
	dup.loaded.Store(h.loaded.Load())
	if h.entry != nil {
		h.cache.copyUser(h.entry, dup.loaded.Load())
	}
	return dup
}

// Release drops this handle's user share, possibly evicting the entry.
// The handle must not be used afterwards.
func (h *GridHandle) Release() {
	if h.entry != nil {
		h.cache.removeUser(h.entry, h.loaded.Load())
		h.entry = nil
	}
}

// Load promotes the handle to tree user and reads the voxel tree on
// demand. Double-checked: the unlocked fast path serves handles that
// already completed promotion, the entry lock serializes the read
// against concurrent loads of the same entry. A failed read is
// terminal; it is reported through ErrorMessage, not retried.
func (h *GridHandle) Load(volumeName, filepath string) {
	// already loaded or not file-backed, nothing to do
	if h.entry == nil || h.loaded.Load() {
		return
	}

	e := h.entry
	e.mu.Lock()
	defer e.mu.Unlock()
	if h.loaded.Load() {
		return
	}

	h.cache.changeToTreeUser(e)

	// already read by another user, nothing further to do
	if e.loaded.Load() {
		h.loaded.Store(true)
		return
	}

	fmt.Println("volume " + volumeName + ": load grid '" + e.gridName + "'")

	tree, err := readGridTree(filepath, e.gridName)
	if err != nil {
		e.errorMsg = err.Error()
	} else {
		e.grid.setTree(tree)
		e.errorMsg = ""
	}

	// the atomic store publishes the tree for unlocked fast-path
	// readers; it must come after setTree
	e.loaded.Store(true)
	h.loaded.Store(true)
}

// readGridTree opens the container addressed by filepath (through
// whatever backend the path resolves to) and reads just one grid's
// tree. The cache mutex is never held here.
func readGridTree(filepath, gridName string) (*Tree, error) {
	local, err := resolveBackend(filepath).Fetch(filepath)
	if err != nil {
		return nil, err
	}
	f, err := OpenFile(local)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.ReadTree(gridName)
}

// Unload demotes the handle back to metadata user. The entry may keep
// its tree while other tree users remain; clearing is the cache's
// eviction check's job.
func (h *GridHandle) Unload(volumeName string) {
	// not loaded or not file-backed, nothing to do
	if h.entry == nil || !h.loaded.Load() {
		return
	}

	e := h.entry
	e.mu.Lock()
	defer e.mu.Unlock()
	if !h.loaded.Load() {
		return
	}

	fmt.Println("volume " + volumeName + ": unload grid '" + e.gridName + "'")

	h.cache.changeToMetadataUser(e)
	h.loaded.Store(false)
}

// IsLoaded reports whether this handle may read the voxel tree.
func (h *GridHandle) IsLoaded() bool {
	return h.loaded.Load()
}

func (h *GridHandle) Name() string {
	return h.grid.Name()
}

func (h *GridHandle) Type() GridType {
	return h.grid.Type()
}

func (h *GridHandle) Transform() [16]float64 {
	return h.grid.Transform()
}

// Grid returns the shared grid. The tree is only safe to read while
// IsLoaded() is true.
func (h *GridHandle) Grid() *Grid {
	return h.grid
}

// ErrorMessage returns the entry's load error once this handle has
// gone through Load, "" otherwise.
func (h *GridHandle) ErrorMessage() string {
	if h.loaded.Load() && h.entry != nil {
		return h.entry.errorMsg
	}
	return ""
}
