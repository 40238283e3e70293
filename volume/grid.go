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

// GridType identifies the voxel payload of a grid. Unrecognized type
// tags read from files map to GridUnknown, which is a valid grid with
// zero channels, not an error.
type GridType uint8

const (
	GridUnknown GridType = iota
	GridBool
	GridFloat
	GridDouble
	GridInt
	GridInt64
	GridVectorFloat
	GridVectorDouble
	GridVectorInt
	GridString
	GridMask
)

// Channels returns the number of float channels stored per voxel.
func (t GridType) Channels() int {
	switch t {
	case GridBool, GridFloat, GridDouble, GridInt, GridInt64:
		return 1
	case GridVectorFloat, GridVectorDouble, GridVectorInt:
		return 3
	default:
		// string, mask, unknown
		return 0
	}
}

func (t GridType) String() string {
	switch t {
	case GridBool:
		return "bool"
	case GridFloat:
		return "float"
	case GridDouble:
		return "double"
	case GridInt:
		return "int32"
	case GridInt64:
		return "int64"
	case GridVectorFloat:
		return "vec3f"
	case GridVectorDouble:
		return "vec3d"
	case GridVectorInt:
		return "vec3i"
	case GridString:
		return "string"
	case GridMask:
		return "mask"
	default:
		return "unknown"
	}
}

// IdentityTransform is the default index-to-world matrix (row major).
var IdentityTransform = [16]float64{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 1, 0,
	0, 0, 0, 1,
}

// Grid is one named sparse volumetric field. A grid always carries its
// metadata (name, type, transform); the tree may be empty until a tree
// user triggers the on-demand load. Metadata is immutable after
// construction and safe to read without any lock.
type Grid struct {
	name      string
	typ       GridType
	transform [16]float64
	tree      *Tree
}

// NewGrid creates a grid with an empty tree.
func NewGrid(name string, typ GridType) *Grid {
	return &Grid{name: name, typ: typ, transform: IdentityTransform, tree: NewTree(typ.Channels())}
}

func NewGridTransformed(name string, typ GridType, transform [16]float64) *Grid {
	return &Grid{name: name, typ: typ, transform: transform, tree: NewTree(typ.Channels())}
}

func (g *Grid) Name() string {
	return g.name
}

func (g *Grid) Type() GridType {
	return g.typ
}

func (g *Grid) Transform() [16]float64 {
	return g.transform
}

// Tree gives access to the voxel tree. For cache-shared grids the tree
// is only safe to read after GridHandle.Load returned.
func (g *Grid) Tree() *Tree {
	return g.tree
}

// setTree attaches loaded voxel data, preserving the metadata.
func (g *Grid) setTree(t *Tree) {
	g.tree = t
}

// clearTree drops the voxel data; metadata survives.
func (g *Grid) clearTree() {
	g.tree = NewTree(g.typ.Channels())
}
