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
	"sync"
	"sync/atomic"
)

/*

Global volume file cache

Cache of grids read from .vxb containers, shared between volumes that
reference the same file and between originals and their copies. There
are two kinds of users per entry: metadata users only need a grid's
name, type and transform; tree users also need the voxel tree resident
in memory. Depending on its users an entry may or may not have a tree.

When the last user of an entry drops away the entry is erased. When the
last tree user drops away but metadata users remain, the tree is
cleared and the entry stays.

*/

type cacheKey struct {
	filepath string
	gridName string
}

// cacheEntry is one cached grid per (filepath, grid name).
type cacheEntry struct {
	// unique key
	filepath string
	gridName string

	// shared grid; tree populated on demand
	grid *Grid
	// has the tree been read by any user? loaded stays true after a
	// failed read so the error is reported instead of retried
	loaded atomic.Bool
	// error text of the most recent tree read attempt
	errorMsg string
	// user counting, guarded by the cache mutex
	numMetadataUsers int
	numTreeUsers     int
	// serializes on-demand tree reads for this entry
	mu sync.Mutex
}

// FileCache deduplicates cache entries by (filepath, grid name). One
// mutex guards the key set and every entry's user counters; it is held
// only for short critical sections, never across file I/O.
type FileCache struct {
	mu      sync.Mutex
	entries map[cacheKey]*cacheEntry
}

func NewFileCache() *FileCache {
	return &FileCache{entries: make(map[cacheKey]*cacheEntry)}
}

// GlobalCache is the process-wide file cache. Init() registers the
// teardown check; tests use NewFileCache() instances instead.
var GlobalCache = FileCache{entries: make(map[cacheKey]*cacheEntry)}

// addMetadataUser finds or creates the entry for (filepath, grid name)
// and registers one metadata user. gridFactory supplies the metadata
// grid (empty tree) when the entry does not exist yet. The returned
// pointer stays valid while the caller holds its user share.
func (c *FileCache) addMetadataUser(filepath, gridName string, gridFactory func() *Grid) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey{filepath, gridName}
	e, ok := c.entries[key]
	if !ok {
		e = &cacheEntry{filepath: filepath, gridName: gridName, grid: gridFactory()}
		c.entries[key] = e
	}
	e.numMetadataUsers++
	return e
}

// copyUser registers a duplicated handle as one more user of the
// handle's current class.
func (c *FileCache) copyUser(e *cacheEntry, treeUser bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if treeUser {
		e.numTreeUsers++
	} else {
		e.numMetadataUsers++
	}
}

// removeUser releases one user and runs the eviction check.
func (c *FileCache) removeUser(e *cacheEntry, treeUser bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if treeUser {
		e.numTreeUsers--
	} else {
		e.numMetadataUsers--
	}
	c.updateForRemoveUser(e)
}

// changeToTreeUser promotes one metadata user to tree user.
func (c *FileCache) changeToTreeUser(e *cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e.numTreeUsers++
	e.numMetadataUsers--
	c.updateForRemoveUser(e)
}

// changeToMetadataUser demotes one tree user to metadata user; if it
// was the last tree user the entry's tree is cleared.
func (c *FileCache) changeToMetadataUser(e *cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e.numMetadataUsers++
	e.numTreeUsers--
	c.updateForRemoveUser(e)
}

// updateForRemoveUser must run with the cache mutex held. An entry with
// zero tree users never retains voxel data; an entry with no users at
// all is erased.
func (c *FileCache) updateForRemoveUser(e *cacheEntry) {
	if e.numMetadataUsers+e.numTreeUsers == 0 {
		delete(c.entries, cacheKey{e.filepath, e.gridName})
	} else if e.numTreeUsers == 0 {
		// no reader can race this clear: nobody believes itself a
		// tree user anymore
		e.grid.clearTree()
		e.loaded.Store(false)
	}
}

// Len returns the number of live entries.
func (c *FileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// FileCacheStat is a snapshot of cache usage for the monitor and the
// inspector shell.
type FileCacheStat struct {
	Entries       int   `json:"entries"`
	MetadataUsers int   `json:"metadata_users"`
	TreeUsers     int   `json:"tree_users"`
	LoadedTrees   int   `json:"loaded_trees"`
	ResidentBytes int64 `json:"resident_bytes"`
}

func (c *FileCache) Stat() FileCacheStat {
	c.mu.Lock()
	defer c.mu.Unlock()
	var stat FileCacheStat
	stat.Entries = len(c.entries)
	for _, e := range c.entries {
		stat.MetadataUsers += e.numMetadataUsers
		stat.TreeUsers += e.numTreeUsers
		if e.loaded.Load() {
			stat.LoadedTrees++
			stat.ResidentBytes += e.grid.Tree().MemUsage()
		}
	}
	return stat
}

// Close verifies that every consumer released its handles. Called for
// the global cache at process exit.
func (c *FileCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) != 0 {
		return fmt.Errorf("file cache torn down with %d live entries", len(c.entries))
	}
	return nil
}
