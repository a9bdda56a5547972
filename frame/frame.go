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

// Package frame implements the in-memory representation and wire codec for
// the six primitive message types of the server protocol: simple strings,
// errors, integers, bulk strings, arrays, and the null sentinel.
package frame

import "fmt"

// Type tags the variant held by a Frame.
type Type byte

const (
	// Simple holds short status text with no CR or LF bytes.
	Simple Type = iota
	// Error holds status text describing a server-side failure.
	Error
	// Integer holds a signed 64-bit value.
	Integer
	// Bulk holds an arbitrary byte string of known length.
	Bulk
	// Array holds an ordered sequence of Frames.
	Array
	// Null is the distinguished absent value.
	Null
)

func (t Type) String() string {
	switch t {
	case Simple:
		return "Simple"
	case Error:
		return "Error"
	case Integer:
		return "Integer"
	case Bulk:
		return "Bulk"
	case Array:
		return "Array"
	case Null:
		return "Null"
	default:
		return fmt.Sprintf("Type(%d)", byte(t))
	}
}

// Frame is a tagged union holding exactly one of the six wire variants.
// A zero Frame is Type Simple with an empty string; use NewNull() to
// construct the absent value explicitly.
//
// Frame is a value type. Cloning a Bulk frame with Clone does not copy its
// payload; callers that mutate a byte slice passed to NewBulk must not
// assume it remains private to the Frame.
type Frame struct {
	typ  Type
	text string  // Simple, Error
	num  int64   // Integer
	bulk []byte  // Bulk
	arr  []Frame // Array
}

// NewSimple returns a Simple frame. The caller must ensure s contains no
// '\r' or '\n' bytes; the encoder does not validate this.
func NewSimple(s string) Frame { return Frame{typ: Simple, text: s} }

// NewError returns an Error frame.
func NewError(s string) Frame { return Frame{typ: Error, text: s} }

// NewInteger returns an Integer frame.
func NewInteger(n int64) Frame { return Frame{typ: Integer, num: n} }

// NewBulk returns a Bulk frame wrapping b. The returned Frame shares b's
// backing array; the caller must not mutate b afterward.
func NewBulk(b []byte) Frame { return Frame{typ: Bulk, bulk: b} }

// NewArray returns an Array frame wrapping xs. The returned Frame shares
// xs's backing array.
func NewArray(xs []Frame) Frame { return Frame{typ: Array, arr: xs} }

// NewNull returns the distinguished absent value.
func NewNull() Frame { return Frame{typ: Null} }

// Type reports which variant f holds.
func (f Frame) Type() Type { return f.typ }

// Text returns the string payload of a Simple or Error frame, or ("", false)
// for any other variant.
func (f Frame) Text() (string, bool) {
	if f.typ == Simple || f.typ == Error {
		return f.text, true
	}
	return "", false
}

// Int returns the payload of an Integer frame, or (0, false) otherwise.
func (f Frame) Int() (int64, bool) {
	if f.typ == Integer {
		return f.num, true
	}
	return 0, false
}

// Bytes returns the payload of a Bulk frame, or (nil, false) otherwise.
// The returned slice shares storage with f; callers must not mutate it.
func (f Frame) Bytes() ([]byte, bool) {
	if f.typ == Bulk {
		return f.bulk, true
	}
	return nil, false
}

// Elems returns the elements of an Array frame, or (nil, false) otherwise.
// The returned slice shares storage with f.
func (f Frame) Elems() ([]Frame, bool) {
	if f.typ == Array {
		return f.arr, true
	}
	return nil, false
}

// IsNull reports whether f is the Null variant.
func (f Frame) IsNull() bool { return f.typ == Null }

// Clone returns a copy of f that shares any Bulk payload or Array backing
// array with f rather than copying it, matching the wire format's
// zero-copy intent for large payloads.
func (f Frame) Clone() Frame {
	return f
}

// Equal reports whether f and g encode the same value.
func (f Frame) Equal(g Frame) bool {
	if f.typ != g.typ {
		return false
	}
	switch f.typ {
	case Simple, Error:
		return f.text == g.text
	case Integer:
		return f.num == g.num
	case Bulk:
		return bytesEqual(f.bulk, g.bulk)
	case Array:
		if len(f.arr) != len(g.arr) {
			return false
		}
		for i := range f.arr {
			if !f.arr[i].Equal(g.arr[i]) {
				return false
			}
		}
		return true
	case Null:
		return true
	default:
		return false
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// String renders f for diagnostics; it is not the wire format.
func (f Frame) String() string {
	switch f.typ {
	case Simple:
		return "+" + f.text
	case Error:
		return "-" + f.text
	case Integer:
		return fmt.Sprintf(":%d", f.num)
	case Bulk:
		return fmt.Sprintf("$%q", f.bulk)
	case Array:
		return fmt.Sprintf("*%v", f.arr)
	case Null:
		return "<nil>"
	default:
		return "<invalid frame>"
	}
}
