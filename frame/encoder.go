// Copyright (C) 2024 kvwire contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package frame

import "strconv"

// Encoder serializes Frames into a reusable byte buffer. It holds no
// state between calls to Encode other than the scratch buffer, so a single
// Encoder may be reused across many unrelated Frames from one goroutine.
type Encoder struct {
	buf []byte
}

// Reset discards any buffered bytes so the Encoder's backing array can be
// reused for the next call to Encode.
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
}

// Bytes returns the bytes accumulated since the last Reset. The returned
// slice is only valid until the next call to Encode or Reset.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Encode appends the wire encoding of f to the Encoder's internal buffer.
func (e *Encoder) Encode(f Frame) {
	e.encode(f)
}

func (e *Encoder) encode(f Frame) {
	switch f.typ {
	case Simple:
		e.line('+', f.text)
	case Error:
		e.line('-', f.text)
	case Integer:
		e.buf = append(e.buf, ':')
		e.buf = strconv.AppendInt(e.buf, f.num, 10)
		e.crlf()
	case Null:
		e.buf = append(e.buf, '$', '-', '1')
		e.crlf()
	case Bulk:
		e.buf = append(e.buf, '$')
		e.buf = strconv.AppendInt(e.buf, int64(len(f.bulk)), 10)
		e.crlf()
		e.buf = append(e.buf, f.bulk...)
		e.crlf()
	case Array:
		e.buf = append(e.buf, '*')
		e.buf = strconv.AppendInt(e.buf, int64(len(f.arr)), 10)
		e.crlf()
		for i := range f.arr {
			e.encode(f.arr[i])
		}
	default:
		panic("frame: encode of invalid frame type")
	}
}

func (e *Encoder) line(tag byte, s string) {
	e.buf = append(e.buf, tag)
	e.buf = append(e.buf, s...)
	e.crlf()
}

func (e *Encoder) crlf() {
	e.buf = append(e.buf, '\r', '\n')
}

// Encode is a convenience wrapper that serializes f into a fresh byte
// slice. For repeated encoding, prefer a reused Encoder to avoid
// reallocating the scratch buffer on every call.
func Encode(f Frame) []byte {
	var e Encoder
	e.Encode(f)
	out := make([]byte, len(e.buf))
	copy(out, e.buf)
	return out
}
