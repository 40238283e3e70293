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
	"testing"
)

func TestTreeSetAndGet(t *testing.T) {
	tree := NewTree(1)
	tree.SetVoxel(0, 0, 0, []float32{1.5})
	tree.SetVoxel(7, 7, 7, []float32{2.5})
	tree.SetVoxel(8, 0, 0, []float32{3.5})    // next leaf in x
	tree.SetVoxel(-1, -1, -1, []float32{4.5}) // negative coordinates

	if v := tree.Voxel(0, 0, 0); v == nil || v[0] != 1.5 {
		t.Errorf("voxel (0,0,0): expected 1.5, got %v", v)
	}
	if v := tree.Voxel(7, 7, 7); v == nil || v[0] != 2.5 {
		t.Errorf("voxel (7,7,7): expected 2.5, got %v", v)
	}
	if v := tree.Voxel(8, 0, 0); v == nil || v[0] != 3.5 {
		t.Errorf("voxel (8,0,0): expected 3.5, got %v", v)
	}
	if v := tree.Voxel(-1, -1, -1); v == nil || v[0] != 4.5 {
		t.Errorf("voxel (-1,-1,-1): expected 4.5, got %v", v)
	}
	if v := tree.Voxel(100, 100, 100); v != nil {
		t.Errorf("untouched voxel: expected nil, got %v", v)
	}

	// (0,0,0) and (7,7,7) share a leaf, the others get their own
	if n := tree.LeafCount(); n != 3 {
		t.Errorf("expected 3 leaves, got %d", n)
	}
	if n := tree.ActiveVoxels(); n != 4 {
		t.Errorf("expected 4 active voxels, got %d", n)
	}
}

func TestTreeVectorChannels(t *testing.T) {
	tree := NewTree(3)
	tree.SetVoxel(1, 2, 3, []float32{0.1, 0.2, 0.3})
	v := tree.Voxel(1, 2, 3)
	if v == nil || len(v) != 3 {
		t.Fatalf("expected 3 channel values, got %v", v)
	}
	if v[0] != 0.1 || v[1] != 0.2 || v[2] != 0.3 {
		t.Errorf("channel values: expected [0.1 0.2 0.3], got %v", v)
	}
}

func TestTreeOverwriteKeepsCount(t *testing.T) {
	tree := NewTree(1)
	tree.SetVoxel(3, 3, 3, []float32{1})
	tree.SetVoxel(3, 3, 3, []float32{2})
	if n := tree.ActiveVoxels(); n != 1 {
		t.Errorf("overwrite must not grow the voxel count, got %d", n)
	}
	if v := tree.Voxel(3, 3, 3); v[0] != 2 {
		t.Errorf("expected overwritten value 2, got %v", v[0])
	}
}

func TestTreeAscendOrder(t *testing.T) {
	tree := NewTree(1)
	tree.SetVoxel(16, 0, 0, []float32{1})
	tree.SetVoxel(0, 0, 0, []float32{1})
	tree.SetVoxel(0, 8, 0, []float32{1})

	var origins [][3]int32
	tree.Ascend(func(l *Leaf) bool {
		origins = append(origins, [3]int32{l.OriginX, l.OriginY, l.OriginZ})
		return true
	})
	want := [][3]int32{{0, 0, 0}, {16, 0, 0}, {0, 8, 0}}
	if len(origins) != len(want) {
		t.Fatalf("expected %d leaves, got %d", len(want), len(origins))
	}
	for i := range want {
		if origins[i] != want[i] {
			t.Errorf("leaf %d: expected origin %v, got %v", i, want[i], origins[i])
		}
	}
}

func TestTreeClear(t *testing.T) {
	tree := NewTree(1)
	tree.SetVoxel(0, 0, 0, []float32{1})
	before := tree.MemUsage()
	if before <= 0 {
		t.Fatalf("expected positive memory usage, got %d", before)
	}
	tree.Clear()
	if n := tree.LeafCount(); n != 0 {
		t.Errorf("expected empty tree after Clear, got %d leaves", n)
	}
}
