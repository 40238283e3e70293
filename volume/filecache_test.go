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
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
)

func flipLastByte(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-1] ^= 0xff
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

// countingBackend wraps the local backend and counts fetches, which is
// how the tests observe whether a load touched the file.
type countingBackend struct {
	fetches atomic.Int64
}

func (b *countingBackend) Exists(path string) bool {
	return FileBackend{}.Exists(path)
}

func (b *countingBackend) Fetch(path string) (string, error) {
	b.fetches.Add(1)
	return FileBackend{}.Fetch(path)
}

// newTestVolume writes a container into its own temp dir, mounts a
// counting backend on that dir and opens a volume on a private cache.
func newTestVolume(t *testing.T, name string) (*Volume, *FileCache, *countingBackend) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fluid.vxb")
	if err := WriteFile(path, buildTestGrids(t), CodecLZ4); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	backend := &countingBackend{}
	RegisterMount(dir, backend)
	t.Cleanup(func() { UnregisterMount(dir) })

	cache := NewFileCache()
	v := NewVolumeWithCache(name, cache)
	v.Filepath = path
	return v, cache, backend
}

func TestCacheLoadOnce(t *testing.T) {
	v, cache, backend := newTestVolume(t, "smoke")
	defer v.Free()

	if !v.Load() {
		t.Fatalf("Load: %s", v.ErrorMessage())
	}
	if n := v.NumGrids(); n != 2 {
		t.Fatalf("expected 2 grids, got %d", n)
	}
	if n := cache.Len(); n != 2 {
		t.Fatalf("expected 2 cache entries, got %d", n)
	}
	// enumeration fetched the file once
	if n := backend.fetches.Load(); n != 1 {
		t.Fatalf("expected 1 fetch after enumeration, got %d", n)
	}

	h := v.FindGrid("density")
	if h == nil {
		t.Fatal("density grid missing")
	}
	if !v.LoadGrid(h) {
		t.Fatalf("LoadGrid: %s", h.ErrorMessage())
	}
	if !h.IsLoaded() || h.Grid().Tree().LeafCount() == 0 {
		t.Fatal("expected a resident tree after LoadGrid")
	}
	fetchesAfterLoad := backend.fetches.Load()

	// second volume on the same file: enumeration and tree load are
	// already cached, no further fetch for the tree
	v2 := NewVolumeWithCache("smoke2", cache)
	v2.Filepath = v.Filepath
	defer v2.Free()
	if !v2.Load() {
		t.Fatalf("second Load: %s", v2.ErrorMessage())
	}
	if n := cache.Len(); n != 2 {
		t.Fatalf("two volumes must share entries, got %d", n)
	}
	h2 := v2.FindGrid("density")
	v2.LoadGrid(h2)
	if backend.fetches.Load() != fetchesAfterLoad+1 {
		// v2's enumeration fetches once; the tree itself is shared
		t.Errorf("expected %d fetches, got %d", fetchesAfterLoad+1, backend.fetches.Load())
	}
	if h2.Grid() != h.Grid() {
		t.Error("handles on the same entry must share the grid")
	}
}

func TestCacheConcurrentLoadOnce(t *testing.T) {
	v, _, backend := newTestVolume(t, "smoke")
	defer v.Free()
	if !v.Load() {
		t.Fatalf("Load: %s", v.ErrorMessage())
	}
	before := backend.fetches.Load()

	h := v.FindGrid("density")
	var wg sync.WaitGroup
	dups := make([]*GridHandle, 8)
	for i := range dups {
		dups[i] = h.Duplicate()
	}
	for _, dup := range dups {
		wg.Add(1)
		go func(dh *GridHandle) {
			defer wg.Done()
			dh.Load("smoke", v.resolvedFilepath())
		}(dup)
	}
	wg.Wait()
	for _, dup := range dups {
		if !dup.IsLoaded() {
			t.Error("duplicate handle did not finish loading")
		}
		dup.Release()
	}
	// the entry lock serializes readers, the loaded flag keeps it at one
	if n := backend.fetches.Load() - before; n != 1 {
		t.Errorf("expected exactly 1 fetch for concurrent loads, got %d", n)
	}
}

func TestCacheEvictionOnLastUser(t *testing.T) {
	v, cache, _ := newTestVolume(t, "smoke")
	if !v.Load() {
		t.Fatalf("Load: %s", v.ErrorMessage())
	}
	if cache.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", cache.Len())
	}
	v.Free()
	if cache.Len() != 0 {
		t.Fatalf("expected empty cache after Free, got %d entries", cache.Len())
	}
	if err := cache.Close(); err != nil {
		t.Errorf("Close on an empty cache: %v", err)
	}
}

func TestCacheTreeClearedOnLastTreeUser(t *testing.T) {
	v, cache, _ := newTestVolume(t, "smoke")
	defer v.Free()
	if !v.Load() {
		t.Fatalf("Load: %s", v.ErrorMessage())
	}
	h := v.FindGrid("density")
	v.LoadGrid(h)

	stat := cache.Stat()
	if stat.LoadedTrees != 1 || stat.TreeUsers != 1 {
		t.Fatalf("expected 1 loaded tree / 1 tree user, got %+v", stat)
	}

	// the tree survives while a second tree user remains
	dup := h.Duplicate()
	v.UnloadGrid(h)
	if cache.Stat().LoadedTrees != 1 {
		t.Fatal("tree must stay resident while a tree user remains")
	}
	dup.Unload("smoke")
	dup.Release()

	stat = cache.Stat()
	if stat.LoadedTrees != 0 || stat.TreeUsers != 0 {
		t.Fatalf("expected tree cleared after last tree user, got %+v", stat)
	}
	if stat.Entries != 2 {
		t.Fatalf("metadata entries must survive tree eviction, got %d", stat.Entries)
	}
	if h.Grid().Tree().LeafCount() != 0 {
		t.Error("expected the shared grid's tree to be cleared")
	}

	// loading again reads the tree anew
	if !v.LoadGrid(h) {
		t.Fatalf("reload: %s", h.ErrorMessage())
	}
	if h.Grid().Tree().LeafCount() == 0 {
		t.Fatal("expected a resident tree after reload")
	}
}

func TestCacheFailedLoadIsTerminal(t *testing.T) {
	v, _, backend := newTestVolume(t, "smoke")
	defer v.Free()
	if !v.Load() {
		t.Fatalf("Load: %s", v.ErrorMessage())
	}

	// corrupt the payload section after enumeration
	flipLastByte(t, v.Filepath)

	h := v.FindGrid("velocity")
	if v.LoadGrid(h) {
		t.Fatal("expected LoadGrid to fail on a corrupt payload")
	}
	if h.ErrorMessage() == "" {
		t.Fatal("expected an error message on the handle")
	}
	before := backend.fetches.Load()

	// a second load attempt reports the recorded error without re-reading
	dup := h.Duplicate()
	defer dup.Release()
	dup.Load("smoke", v.resolvedFilepath())
	if dup.ErrorMessage() == "" {
		t.Error("duplicate must see the recorded error")
	}
	if backend.fetches.Load() != before {
		t.Error("failed loads must not be retried")
	}
}

func TestCacheSharedEntryIndependentRelease(t *testing.T) {
	cache := NewFileCache()
	first := NewGrid("density", GridFloat)
	h1 := newCachedHandle(cache, "/vols/a.vxb", first)
	h2 := newCachedHandle(cache, "/vols/a.vxb", NewGrid("density", GridFloat))
	if cache.Len() != 1 {
		t.Fatalf("same key must share one entry, got %d", cache.Len())
	}
	if h2.Grid() != first {
		t.Error("the second handle attaches to the existing entry's grid")
	}

	h1.Release()
	if cache.Len() != 1 {
		t.Fatal("the entry must survive while one handle remains")
	}
	h2.Release()
	if cache.Len() != 0 {
		t.Fatal("the last release evicts the entry")
	}

	// a fresh lookup after eviction builds a fresh entry, nothing stale
	fresh := NewGrid("density", GridFloat)
	h3 := newCachedHandle(cache, "/vols/a.vxb", fresh)
	if h3.Grid() != fresh {
		t.Error("expected a fresh entry after eviction")
	}
	h3.Release()
}

func TestPrivateGridHandle(t *testing.T) {
	g := NewGrid("noise", GridFloat)
	tree := NewTree(1)
	tree.SetVoxel(0, 0, 0, []float32{1})
	g.setTree(tree)

	h := NewPrivateGridHandle(g)
	if !h.IsLoaded() {
		t.Fatal("private handles always count as loaded")
	}
	dup := h.Duplicate()
	if dup.Grid() != g {
		t.Error("duplicate of a private handle shares the grid")
	}
	// releasing private handles touches no cache
	dup.Release()
	h.Release()
}
