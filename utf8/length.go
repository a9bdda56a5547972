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

// Package utf8 provides UTF-8 helpers beyond the standard library's. Its
// one caller is the frame decoder's diagnostic path: when a Simple or
// Error frame is rejected as invalid UTF-8, the error message reports the
// ValidStringLength count for the whole text. Never on the hot path.
package utf8

import (
	"encoding/binary"
	"math/bits"
)

// ValidStringLength returns the number of runes in str, assuming str is
// valid UTF-8. For invalid input the result counts leading bytes, which
// is close enough for the diagnostic use above.
func ValidStringLength(str []byte) int {
	n := len(str)
	continuation := 0
	// Count continuation bytes (0b10xx_xxxx); the remaining bytes are
	// leading bytes, one per rune.

	// process 8 bytes at once using a SWAR algorithm
	for len(str) >= 8 {
		qword := binary.LittleEndian.Uint64(str)
		str = str[8:]

		bit7 := qword & 0x8080808080808080
		if bit7 == 0 {
			// all 8 bytes are ASCII chars
			continue
		}

		bit6 := qword << 1
		comb := bit7 &^ bit6 // bit7 = 1 and bit6 = 0 => continuation byte
		continuation += bits.OnesCount64(comb)
	}

	// process the remaining 1..7 bytes
	for _, b := range str {
		if b&0b11_000000 == 0b10_000000 {
			continuation += 1
		}
	}

	return n - continuation
}
