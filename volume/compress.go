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
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// Codec identifies the compression applied to a grid's leaf payload.
type Codec uint8

const (
	CodecRaw  Codec = 0
	CodecLZ4  Codec = 1
	CodecZstd Codec = 2
	CodecXZ   Codec = 3
)

func (c Codec) String() string {
	switch c {
	case CodecRaw:
		return "raw"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	case CodecXZ:
		return "xz"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// CodecByName resolves a settings string to a codec.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "raw", "":
		return CodecRaw, nil
	case "lz4":
		return CodecLZ4, nil
	case "zstd":
		return CodecZstd, nil
	case "xz":
		return CodecXZ, nil
	default:
		return CodecRaw, fmt.Errorf("unknown compression codec %q", name)
	}
}

// zstd encoder/decoder are reused; both are safe for concurrent use
var zstdEncoder *zstd.Encoder
var zstdDecoder *zstd.Decoder

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("volume: zstd encoder init failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("volume: zstd decoder init failed: " + err.Error())
	}
}

func compress(codec Codec, data []byte) ([]byte, error) {
	switch codec {
	case CodecRaw:
		return data, nil
	case CodecLZ4:
		var b bytes.Buffer
		w := lz4.NewWriter(&b)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return b.Bytes(), nil
	case CodecZstd:
		return zstdEncoder.EncodeAll(data, nil), nil
	case CodecXZ:
		var b bytes.Buffer
		w, err := xz.NewWriter(&b)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return b.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown compression codec %d", codec)
	}
}

func decompress(codec Codec, data []byte, rawLen int) ([]byte, error) {
	var result []byte
	switch codec {
	case CodecRaw:
		result = data
	case CodecLZ4:
		r := lz4.NewReader(bytes.NewReader(data))
		result = make([]byte, rawLen)
		if _, err := io.ReadFull(r, result); err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
	case CodecZstd:
		var err error
		result, err = zstdDecoder.DecodeAll(data, make([]byte, 0, rawLen))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
	case CodecXZ:
		r, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("xz decompress: %w", err)
		}
		result = make([]byte, rawLen)
		if _, err := io.ReadFull(r, result); err != nil {
			return nil, fmt.Errorf("xz decompress: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown compression codec %d", codec)
	}
	if len(result) != rawLen {
		return nil, fmt.Errorf("%s decompress: got %d bytes, expected %d", codec, len(result), rawLen)
	}
	return result, nil
}
