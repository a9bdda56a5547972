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

// Package slot maps cluster keys to the server's 14-bit slot space using
// the CRC16-CCITT-XModem polynomial and the {hash-tag} substring rule, per
// spec.md §4.4. There is no library in the teacher's dependency set for
// this exact CRC variant (github.com/klauspost/compress exposes CRC32 and
// CRC64 only, with different polynomials), so the table is hand-written;
// see DESIGN.md for why that is not a stdlib fallback needing an
// ecosystem substitute.
package slot

// Count is the number of slots in the server's hash space.
const Count = 16384

const mask = Count - 1

var table [256]uint16

func init() {
	const poly = 0x1021
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for b := 0; b < 8; b++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ poly
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
}

// CRC16 computes the CRC16-CCITT-XModem checksum of b: initial value
// 0x0000, polynomial 0x1021, most-significant-bit-first, no input or
// output reflection, no final XOR.
func CRC16(b []byte) uint16 {
	var crc uint16
	for _, c := range b {
		crc = (crc << 8) ^ table[byte(crc>>8)^c]
	}
	return crc
}

// HashTag returns the substring of key that slot hashing is computed over,
// per spec.md §4.4: the content between the first '{' and the first '}'
// after it, if both exist and the braces enclose a non-empty span;
// otherwise key itself (an empty "{}" does not fall through to a later '}').
func HashTag(key string) string {
	i := indexByte(key, '{')
	if i < 0 {
		return key
	}
	j := indexByteFrom(key, '}', i+1)
	if j < 0 || j == i+1 {
		return key
	}
	return key[i+1 : j]
}

func indexByte(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}

func indexByteFrom(s string, c byte, from int) int {
	for i := from; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}

// Of returns the 14-bit slot a key maps to.
func Of(key string) int {
	return int(CRC16([]byte(HashTag(key))) & mask)
}
