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

import "path/filepath"

// Volume references a .vxb file (or a sequence of them, one per frame)
// and owns the collection of grid handles loaded from it. Copies share
// cache entries with their original.
type Volume struct {
	Name     string
	Filepath string

	// sequence playback
	IsSequence    bool
	SequenceMode  SequenceMode
	FrameStart    int
	FrameOffset   int
	FrameDuration int

	// index into the grid list for tools that work on "the" grid
	ActiveGridIndex int

	// resolved frame for the current scene time
	frame int

	grids *GridCollection
}

// NewVolume creates an empty volume bound to the global file cache.
func NewVolume(name string) *Volume {
	return NewVolumeWithCache(name, &GlobalCache)
}

// NewVolumeWithCache binds the volume to a specific cache (tests).
func NewVolumeWithCache(name string, cache *FileCache) *Volume {
	return &Volume{Name: name, FrameStart: 1, grids: newGridCollection(cache)}
}

// Copy duplicates the volume; grid handles become siblings sharing the
// same cache entries, so the file is not read again.
func (v *Volume) Copy() *Volume {
	dup := *v
	dup.grids = v.grids.duplicate()
	return &dup
}

// Free releases all handles. The volume may be loaded again afterwards.
func (v *Volume) Free() {
	v.grids.unload(v.Name)
}

// EvalFrame resolves the sequence frame for a scene frame; a frame
// change drops the current grids so the next Load reads the new file.
func (v *Volume) EvalFrame(sceneFrame int) {
	frame := 0
	if v.IsSequence {
		frame = SequenceFrame(v.SequenceMode, sceneFrame, v.FrameStart, v.FrameDuration, v.FrameOffset)
	}
	if frame != v.frame {
		v.Unload()
		v.frame = frame
	}
}

// Frame returns the currently resolved sequence frame.
func (v *Volume) Frame() int {
	return v.frame
}

// resolvedFilepath is the absolute path for the current frame, with
// the frame number substituted for sequences.
func (v *Volume) resolvedFilepath() string {
	path, err := filepath.Abs(v.Filepath)
	if err != nil {
		path = v.Filepath
	}
	if v.IsSequence {
		path = SequenceFilepath(path, v.frame)
	}
	return path
}

// IsLoaded reports whether there is nothing (more) to load: no file
// set, or the grid list already populated.
func (v *Volume) IsLoaded() bool {
	return v.Filepath == "" || v.grids.isLoaded()
}

// Load enumerates the grids of the volume's file as metadata users.
// Success means the aggregate error message is empty. Outside the
// sequence range there is nothing to show and Load trivially succeeds.
func (v *Volume) Load() bool {
	if v.frame == FrameNone {
		// outside sequence range, skip loading this frame
		return true
	}
	if v.IsLoaded() {
		return v.grids.errorMsg == ""
	}
	return v.grids.load(v.Name, v.resolvedFilepath())
}

// Unload drops all grid handles and clears the recorded error, forcing
// a fresh attempt on the next Load.
func (v *Volume) Unload() {
	v.grids.unload(v.Name)
}

// ErrorMessage returns the aggregate error of the last load, "" if
// none.
func (v *Volume) ErrorMessage() string {
	return v.grids.errorMsg
}

func (v *Volume) NumGrids() int {
	return len(v.grids.handles)
}

// Grid returns the handle at index, nil when out of range.
func (v *Volume) Grid(index int) *GridHandle {
	if index < 0 || index >= len(v.grids.handles) {
		return nil
	}
	return v.grids.handles[index]
}

// ActiveGrid returns the handle selected by ActiveGridIndex, clamped
// into range; nil when the volume has no grids.
func (v *Volume) ActiveGrid() *GridHandle {
	n := v.NumGrids()
	if n == 0 {
		return nil
	}
	return v.grids.handles[clampInt(v.ActiveGridIndex, 0, n-1)]
}

// FindGrid returns the first grid with the given name, nil if absent.
func (v *Volume) FindGrid(name string) *GridHandle {
	for _, h := range v.grids.handles {
		if h.Name() == name {
			return h
		}
	}
	return nil
}

// LoadGrid promotes one grid to tree user, reading its voxel data on
// demand. A per-grid load error propagates into the collection's
// aggregate error message.
func (v *Volume) LoadGrid(h *GridHandle) bool {
	h.Load(v.Name, v.grids.filepath)
	if msg := h.ErrorMessage(); msg != "" {
		v.grids.errorMsg = msg
		return false
	}
	return true
}

// UnloadGrid demotes one grid back to metadata user.
func (v *Volume) UnloadGrid(h *GridHandle) {
	h.Unload(v.Name)
}
