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
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

/*

.vxb container layout

 - 8 byte magic
 - uint32 grid count
 - uint64 payload base (absolute file offset of the payload section)
 - per grid: uint32 descriptor length + CBOR descriptor
 - payload section: concatenated compressed leaf blobs

Grid metadata lives entirely in the descriptors, so enumerating grids
never touches the payload section. Each payload is independently
addressable by (offset, length), which is what makes per-grid lazy tree
reads possible. Descriptors decode one at a time; a corrupt descriptor
ends enumeration but keeps every grid parsed before it.

*/

var fileMagic = [8]byte{'v', 'o', 'x', 'c', 'p', 'v', 'x', 'b'}

type gridDescriptor struct {
	Name      string      `cbor:"name"`
	Type      uint8       `cbor:"type"`
	Transform [16]float64 `cbor:"transform"`
	Codec     uint8       `cbor:"codec"`
	Offset    uint64      `cbor:"offset"` // relative to payload base
	Length    uint64      `cbor:"length"`
	RawLength uint64      `cbor:"raw_length"`
	Leaves    uint32      `cbor:"leaves"`
	Checksum  [32]byte    `cbor:"checksum"` // blake3 of the compressed payload
}

// File is an open .vxb container. Grids() returns metadata-only grids
// in file order; ReadTree() reads and decodes one grid's voxel data.
type File struct {
	path        string
	f           *os.File
	grids       []*Grid
	descriptors []gridDescriptor
	payloadBase int64
}

// OpenFile opens a container and enumerates grid metadata. On a corrupt
// descriptor it returns the partially filled File together with the
// error; the caller keeps whatever enumerated cleanly.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	vf := &File{path: path, f: f}

	var magic [8]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: not a voxcp volume: %v", path, err)
	}
	if magic != fileMagic {
		f.Close()
		return nil, fmt.Errorf("%s: not a voxcp volume (bad magic)", path)
	}
	var count uint32
	var payloadBase uint64
	if err := binary.Read(f, binary.LittleEndian, &count); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: truncated header: %v", path, err)
	}
	if err := binary.Read(f, binary.LittleEndian, &payloadBase); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: truncated header: %v", path, err)
	}
	vf.payloadBase = int64(payloadBase)

	for i := uint32(0); i < count; i++ {
		var dlen uint32
		if err := binary.Read(f, binary.LittleEndian, &dlen); err != nil {
			return vf, fmt.Errorf("%s: grid %d: truncated descriptor: %v", path, i, err)
		}
		buf := make([]byte, dlen)
		if _, err := io.ReadFull(f, buf); err != nil {
			return vf, fmt.Errorf("%s: grid %d: truncated descriptor: %v", path, i, err)
		}
		var desc gridDescriptor
		if err := cbor.Unmarshal(buf, &desc); err != nil {
			return vf, fmt.Errorf("%s: grid %d: bad descriptor: %v", path, i, err)
		}
		vf.descriptors = append(vf.descriptors, desc)
		if desc.Name == "" {
			// invalid entry, kept as a nil slot so indices stay aligned
			vf.grids = append(vf.grids, nil)
			continue
		}
		typ := GridType(desc.Type)
		if typ > GridMask {
			typ = GridUnknown
		}
		vf.grids = append(vf.grids, NewGridTransformed(desc.Name, typ, desc.Transform))
	}
	return vf, nil
}

// Grids returns the enumerated metadata-only grids in file order.
// Slots may be nil for invalid descriptors.
func (vf *File) Grids() []*Grid {
	return vf.grids
}

// ReadTree reads, verifies and decodes the voxel tree of the named
// grid. The first grid with a matching name wins, mirroring how
// duplicate names collapse in the file cache.
func (vf *File) ReadTree(name string) (*Tree, error) {
	for i, desc := range vf.descriptors {
		if desc.Name != name || vf.grids[i] == nil {
			continue
		}
		payload := make([]byte, desc.Length)
		if _, err := vf.f.ReadAt(payload, vf.payloadBase+int64(desc.Offset)); err != nil {
			return nil, fmt.Errorf("%s: grid '%s': read payload: %v", vf.path, name, err)
		}
		if blake3.Sum256(payload) != desc.Checksum {
			return nil, fmt.Errorf("%s: grid '%s': payload checksum mismatch", vf.path, name)
		}
		raw, err := decompress(Codec(desc.Codec), payload, int(desc.RawLength))
		if err != nil {
			return nil, fmt.Errorf("%s: grid '%s': %v", vf.path, name, err)
		}
		return decodeLeaves(raw, vf.grids[i].Type().Channels(), int(desc.Leaves))
	}
	return nil, fmt.Errorf("%s: no grid named '%s'", vf.path, name)
}

func (vf *File) Close() error {
	return vf.f.Close()
}

// leaf wire format: 3x int32 origin, occupancy words, channel floats
func leafWireSize(channels int) int {
	return 12 + leafVoxels/8 + 4*channels*leafVoxels
}

func encodeLeaves(tree *Tree) []byte {
	var b bytes.Buffer
	tree.Ascend(func(l *Leaf) bool {
		binary.Write(&b, binary.LittleEndian, l.OriginX)
		binary.Write(&b, binary.LittleEndian, l.OriginY)
		binary.Write(&b, binary.LittleEndian, l.OriginZ)
		binary.Write(&b, binary.LittleEndian, l.Occupancy[:])
		binary.Write(&b, binary.LittleEndian, l.Values)
		return true
	})
	return b.Bytes()
}

func decodeLeaves(raw []byte, channels int, count int) (*Tree, error) {
	if len(raw) != count*leafWireSize(channels) {
		return nil, fmt.Errorf("leaf payload is %d bytes, expected %d", len(raw), count*leafWireSize(channels))
	}
	tree := NewTree(channels)
	r := bytes.NewReader(raw)
	for i := 0; i < count; i++ {
		leaf := &Leaf{Values: make([]float32, channels*leafVoxels)}
		binary.Read(r, binary.LittleEndian, &leaf.OriginX)
		binary.Read(r, binary.LittleEndian, &leaf.OriginY)
		binary.Read(r, binary.LittleEndian, &leaf.OriginZ)
		binary.Read(r, binary.LittleEndian, leaf.Occupancy[:])
		binary.Read(r, binary.LittleEndian, leaf.Values)
		tree.InsertLeaf(leaf)
	}
	return tree, nil
}

// WriteFile writes grids (with their trees) into a .vxb container.
func WriteFile(path string, grids []*Grid, codec Codec) error {
	if len(grids) == 0 {
		return errors.New("no grids to write")
	}
	descriptors := make([]gridDescriptor, 0, len(grids))
	payloads := make([][]byte, 0, len(grids))
	encoded := make([][]byte, 0, len(grids))
	offset := uint64(0)
	for _, g := range grids {
		raw := encodeLeaves(g.Tree())
		payload, err := compress(codec, raw)
		if err != nil {
			return err
		}
		desc := gridDescriptor{
			Name:      g.Name(),
			Type:      uint8(g.Type()),
			Transform: g.Transform(),
			Codec:     uint8(codec),
			Offset:    offset,
			Length:    uint64(len(payload)),
			RawLength: uint64(len(raw)),
			Leaves:    uint32(g.Tree().LeafCount()),
			Checksum:  blake3.Sum256(payload),
		}
		enc, err := cbor.Marshal(desc)
		if err != nil {
			return err
		}
		descriptors = append(descriptors, desc)
		payloads = append(payloads, payload)
		encoded = append(encoded, enc)
		offset += uint64(len(payload))
	}

	payloadBase := uint64(8 + 4 + 8)
	for _, enc := range encoded {
		payloadBase += uint64(4 + len(enc))
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bytes.Buffer{}
	w.Write(fileMagic[:])
	binary.Write(&w, binary.LittleEndian, uint32(len(grids)))
	binary.Write(&w, binary.LittleEndian, payloadBase)
	for _, enc := range encoded {
		binary.Write(&w, binary.LittleEndian, uint32(len(enc)))
		w.Write(enc)
	}
	for _, payload := range payloads {
		w.Write(payload)
	}
	if _, err := f.Write(w.Bytes()); err != nil {
		return err
	}
	return f.Sync()
}
