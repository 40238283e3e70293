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

import "github.com/google/btree"

// voxels are grouped into cubic leaf blocks of leafDim^3
const leafDim = 8
const leafVoxels = leafDim * leafDim * leafDim

// Leaf is one dense block of voxels at a leaf-aligned origin.
// Values holds channels*leafVoxels float32s; the occupancy bitmap marks
// which voxels are set (mask and string grids carry only the bitmap).
type Leaf struct {
	OriginX, OriginY, OriginZ int32
	Occupancy                 [leafVoxels / 64]uint64
	Values                    []float32
}

func (l *Leaf) setBit(idx int) {
	l.Occupancy[idx/64] |= 1 << (uint(idx) % 64)
}

func (l *Leaf) bit(idx int) bool {
	return l.Occupancy[idx/64]&(1<<(uint(idx)%64)) != 0
}

// ActiveVoxels counts the set bits of the occupancy bitmap.
func (l *Leaf) ActiveVoxels() int {
	n := 0
	for _, w := range l.Occupancy {
		for ; w != 0; w &= w - 1 {
			n++
		}
	}
	return n
}

// Tree is a sparse voxel tree: leaf blocks ordered by origin in a btree.
// Only the cache entry lock holder may mutate a tree that is shared
// through the file cache; metadata-only consumers never touch it.
type Tree struct {
	channels int
	leaves   *btree.BTreeG[*Leaf]
}

func leafLess(a, b *Leaf) bool {
	if a.OriginZ != b.OriginZ {
		return a.OriginZ < b.OriginZ
	}
	if a.OriginY != b.OriginY {
		return a.OriginY < b.OriginY
	}
	return a.OriginX < b.OriginX
}

func NewTree(channels int) *Tree {
	return &Tree{channels: channels, leaves: btree.NewG[*Leaf](8, leafLess)}
}

func (t *Tree) Channels() int {
	return t.channels
}

func leafOrigin(c int32) int32 {
	// floor division towards the leaf grid
	if c < 0 {
		return ((c - leafDim + 1) / leafDim) * leafDim
	}
	return (c / leafDim) * leafDim
}

func voxelIndex(x, y, z int32) int {
	lx := x - leafOrigin(x)
	ly := y - leafOrigin(y)
	lz := z - leafOrigin(z)
	return int(lz)*leafDim*leafDim + int(ly)*leafDim + int(lx)
}

// SetVoxel activates the voxel at (x,y,z) and stores its channel values.
// v may be nil for zero-channel grids (mask, string).
func (t *Tree) SetVoxel(x, y, z int32, v []float32) {
	probe := &Leaf{OriginX: leafOrigin(x), OriginY: leafOrigin(y), OriginZ: leafOrigin(z)}
	leaf, ok := t.leaves.Get(probe)
	if !ok {
		probe.Values = make([]float32, t.channels*leafVoxels)
		t.leaves.ReplaceOrInsert(probe)
		leaf = probe
	}
	idx := voxelIndex(x, y, z)
	leaf.setBit(idx)
	for c := 0; c < t.channels && c < len(v); c++ {
		leaf.Values[idx*t.channels+c] = v[c]
	}
}

// Voxel returns the channel values at (x,y,z), or nil if the voxel is
// not active. Zero-channel grids return an empty non-nil slice for
// active voxels.
func (t *Tree) Voxel(x, y, z int32) []float32 {
	probe := &Leaf{OriginX: leafOrigin(x), OriginY: leafOrigin(y), OriginZ: leafOrigin(z)}
	leaf, ok := t.leaves.Get(probe)
	if !ok {
		return nil
	}
	idx := voxelIndex(x, y, z)
	if !leaf.bit(idx) {
		return nil
	}
	return leaf.Values[idx*t.channels : idx*t.channels+t.channels]
}

// InsertLeaf adds a fully built leaf block (used by the file reader).
func (t *Tree) InsertLeaf(leaf *Leaf) {
	t.leaves.ReplaceOrInsert(leaf)
}

// Ascend walks leaves in origin order (z, y, x).
func (t *Tree) Ascend(fn func(*Leaf) bool) {
	t.leaves.Ascend(fn)
}

func (t *Tree) LeafCount() int {
	return t.leaves.Len()
}

func (t *Tree) ActiveVoxels() int {
	n := 0
	t.leaves.Ascend(func(l *Leaf) bool {
		n += l.ActiveVoxels()
		return true
	})
	return n
}

// MemUsage estimates resident bytes of the voxel payload.
func (t *Tree) MemUsage() int64 {
	per := int64(12 + leafVoxels/8 + 4*t.channels*leafVoxels + 48)
	return int64(t.leaves.Len()) * per
}

// Clear drops all leaf blocks, returning the tree to the empty state.
func (t *Tree) Clear() {
	t.leaves.Clear(false)
}
