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
	"path/filepath"
	"sync"
	"sync/atomic"
)

// GridCollection is the list of grid handles discovered in one file
// load, in file order. It is owned by a Volume; the actual grids live
// in the file cache.
type GridCollection struct {
	cache *FileCache
	// absolute path grids have been loaded from; empty means nothing
	// loaded. Written before the loaded flag is published.
	filepath string
	handles  []*GridHandle
	// aggregate error of the whole collection load
	errorMsg string
	// published after filepath/handles/errorMsg are in place, checked
	// unlocked on the load fast path
	loadedFlag atomic.Bool
	// guards the whole-file enumeration, distinct from any entry lock
	mu sync.Mutex
}

func newGridCollection(cache *FileCache) *GridCollection {
	return &GridCollection{cache: cache}
}

func (gc *GridCollection) isLoaded() bool {
	return gc.loadedFlag.Load()
}

// load opens the file addressed for the volume's current frame and
// enumerates grid metadata for all grids it contains. No voxel data is
// read here. Idempotent: once a path was attempted (successfully or
// not) repeat calls return the recorded outcome without touching disk.
func (gc *GridCollection) load(volumeName, path string) bool {
	if gc.loadedFlag.Load() {
		return gc.errorMsg == ""
	}

	gc.mu.Lock()
	defer gc.mu.Unlock()
	if gc.loadedFlag.Load() {
		return gc.errorMsg == ""
	}

	fmt.Println("volume " + volumeName + ": load " + path)

	backend := resolveBackend(path)
	if !backend.Exists(path) {
		gc.errorMsg = filepath.Base(path) + " not found"
		fmt.Println("volume " + volumeName + ": " + gc.errorMsg)
		// record the attempt so repeat calls short-circuit
		gc.filepath = path
		gc.loadedFlag.Store(true)
		return false
	}

	local, err := backend.Fetch(path)
	if err != nil {
		gc.errorMsg = err.Error()
	} else if f, err := OpenFile(local); f == nil {
		gc.errorMsg = err.Error()
	} else {
		// partial enumeration keeps whatever parsed cleanly, with the
		// error still recorded
		if err != nil {
			gc.errorMsg = err.Error()
			fmt.Println("volume " + volumeName + ": " + gc.errorMsg)
		}
		for _, meta := range f.Grids() {
			if meta == nil {
				continue
			}
			// duplicate names collapse onto one cache entry by key
			gc.handles = append(gc.handles, newCachedHandle(gc.cache, path, meta))
		}
		f.Close()
	}

	gc.filepath = path
	gc.loadedFlag.Store(true)
	return gc.errorMsg == ""
}

// unload releases every handle (decrementing cache counters, possibly
// evicting entries) and resets the collection to the unloaded state.
// This is the only path that shrinks the handle list.
func (gc *GridCollection) unload(volumeName string) {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	if gc.filepath == "" {
		return
	}
	fmt.Println("volume " + volumeName + ": unload")
	for _, h := range gc.handles {
		h.Release()
	}
	gc.handles = nil
	gc.errorMsg = ""
	gc.filepath = ""
	gc.loadedFlag.Store(false)
}

// duplicate builds the collection of a volume copy: sibling handles
// into the same cache entries, same path and error state.
func (gc *GridCollection) duplicate() *GridCollection {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	dup := &GridCollection{cache: gc.cache, filepath: gc.filepath, errorMsg: gc.errorMsg}
	for _, h := range gc.handles {
		dup.handles = append(dup.handles, h.Duplicate())
	}
	dup.loadedFlag.Store(gc.loadedFlag.Load())
	return dup
}
