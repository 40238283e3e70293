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
	"math"
	"path/filepath"
	"strings"
)

// SequenceMode governs how scene frames outside [start, start+duration)
// map onto the files of a volume sequence.
type SequenceMode uint8

const (
	SequenceClip     SequenceMode = 0 // out of range shows nothing
	SequenceExtend   SequenceMode = 1 // clamp to first/last frame
	SequenceRepeat   SequenceMode = 2 // wrap around
	SequencePingPong SequenceMode = 3 // wrap around, alternating direction
)

func (m SequenceMode) String() string {
	switch m {
	case SequenceClip:
		return "clip"
	case SequenceExtend:
		return "extend"
	case SequenceRepeat:
		return "repeat"
	case SequencePingPong:
		return "pingpong"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// FrameNone marks "no frame to show" (outside a clip range, or an
// empty sequence).
const FrameNone = math.MaxInt32

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SequenceFrame maps a scene frame onto a sequence frame in
// [1, duration], or FrameNone. The offset applies after range folding
// so a bounded cycle can still be shifted (e.g. looping files 100-110).
func SequenceFrame(mode SequenceMode, sceneFrame, start, duration, offset int) int {
	if duration == 0 {
		return FrameNone
	}

	frame := sceneFrame - start + 1

	switch mode {
	case SequenceClip:
		if frame < 1 || frame > duration {
			return FrameNone
		}
	case SequenceExtend:
		frame = clampInt(frame, 1, duration)
	case SequenceRepeat:
		frame = frame % duration
		if frame < 0 {
			frame += duration
		}
		if frame == 0 {
			frame = duration
		}
	case SequencePingPong:
		if duration == 1 {
			// a one-frame sequence has no period to fold over
			frame = 1
			break
		}
		period := duration*2 - 2
		frame = frame % period
		if frame < 0 {
			frame += period
		}
		if frame == 0 {
			frame = period
		}
		if frame > duration {
			frame = duration*2 - frame
		}
	}

	return frame + offset
}

// SequenceFilepath substitutes the frame number into a path template.
// A run of '#' characters is the frame field ("smoke_####.vxb"); when
// there is none, a trailing digit run in the stem is replaced
// ("smoke_0001.vxb"). The frame is zero padded to the field width.
// Paths without a frame field come back unchanged.
func SequenceFilepath(path string, frame int) string {
	dir, base := filepath.Split(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	end := strings.LastIndexByte(stem, '#')
	isDigits := false
	if end < 0 {
		end = len(stem) - 1
		for end >= 0 && stem[end] >= '0' && stem[end] <= '9' {
			isDigits = true
			end--
		}
		if !isDigits {
			return path
		}
		end++
		isDigits = true
	}
	begin := end
	if isDigits {
		for begin > 0 && stem[begin-1] >= '0' && stem[begin-1] <= '9' {
			begin--
		}
		return dir + stem[:begin] + fmt.Sprintf("%0*d", len(stem)-begin, frame) + ext
	}
	for begin > 0 && stem[begin-1] == '#' {
		begin--
	}
	return dir + stem[:begin] + fmt.Sprintf("%0*d", end-begin+1, frame) + stem[end+1:] + ext
}
