// SPDX-License-Identifier: GPL-3.0-or-later

package bmf

import (
	"math"
	"math/bits"
	"strings"
)

// unsignedLen returns the number of bytes needed to encode v.
func unsignedLen(v uint64) int {
	sum, carry := bits.Add64(v, valueOffset, 0)
	n := 1
	for sum >= uint64(continuationBit) || carry != 0 {
		sum = sum>>7 | carry<<57
		carry = 0
		n++
	}
	return n
}

// putUnsigned writes the run of v into dst, which must be large enough.
// It returns the number of bytes written.
func putUnsigned(dst []byte, v uint64) int {
	sum, carry := bits.Add64(v, valueOffset, 0)
	i := 0
	for sum >= uint64(continuationBit) || carry != 0 {
		dst[i] = byte(sum)&payloadMask | continuationBit
		sum = sum>>7 | carry<<57
		carry = 0
		i++
	}
	dst[i] = byte(sum)
	return i + 1
}

// readUnsigned decodes the unsigned run at the start of src.
// It returns the value and the length of the run.
func readUnsigned(src []byte) (uint64, int, error) {
	if IsFinished(src) {
		return 0, 0, ErrMissingSegment
	}
	if src[0] == Empty {
		return 0, 0, ErrEmptySegment
	}

	var lo, hi uint64
	for i, b := range src {
		if i >= maxUnsignedRun {
			return 0, 0, ErrOverflow
		}

		group := uint64(b & payloadMask)
		shift := uint(7 * i)
		if shift < 64 {
			lo |= group << shift
			if shift > 57 {
				hi |= group >> (64 - shift)
			}
		} else {
			hi |= group << (shift - 64)
		}

		if b&continuationBit == 0 {
			value, borrow := bits.Sub64(lo, valueOffset, 0)
			if hi-borrow != 0 {
				return 0, 0, ErrOverflow
			}
			return value, i + 1, nil
		}
	}
	return 0, 0, ErrTruncated
}

func zigzag(v int64) uint64 {
	return uint64(v<<1) ^ uint64(v>>63)
}

func unzigzag(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

func floatBits(f float64) uint64 {
	return math.Float64bits(f)
}

func bitsFloat(u uint64) float64 {
	return math.Float64frombits(u)
}

// stringLen returns the run length of s plus its NUL terminator.
func stringLen(s string) int {
	return (8*(len(s)+1) + 6) / 7
}

// putString packs s and its terminating NUL into dst, which must be large enough.
func putString(dst []byte, s string) int {
	var acc uint32
	var nbits uint
	i := 0

	emit := func() {
		dst[i] = byte(acc) & payloadMask
		acc >>= 7
		nbits -= 7
		i++
	}

	for j := 0; j <= len(s); j++ {
		var b byte
		if j < len(s) {
			b = s[j]
		}
		acc |= uint32(b) << nbits
		nbits += 8
		for nbits >= 7 {
			emit()
		}
	}
	if nbits > 0 {
		dst[i] = byte(acc) & payloadMask
		i++
	}

	for k := 0; k < i-1; k++ {
		dst[k] |= continuationBit
	}
	return i
}

// readString unpacks the string run at the start of src.
func readString(src []byte) (string, int, error) {
	if IsFinished(src) {
		return "", 0, ErrMissingSegment
	}
	if src[0] == Empty {
		return "", 0, ErrEmptySegment
	}

	n := Length(src)
	if src[n-1]&continuationBit != 0 {
		return "", 0, ErrTruncated
	}

	var sb strings.Builder
	sb.Grow(n * 7 / 8)

	var acc uint32
	var nbits uint
	for _, b := range src[:n] {
		acc |= uint32(b&payloadMask) << nbits
		nbits += 7
		for nbits >= 8 {
			sb.WriteByte(byte(acc))
			acc >>= 8
			nbits -= 8
		}
	}

	decoded := sb.String()
	nul := strings.IndexByte(decoded, 0)
	if nul < 0 {
		return "", 0, ErrMissingNul
	}
	if nul != len(decoded)-1 {
		return "", 0, ErrEmbeddedNul
	}
	return decoded[:nul], n, nil
}
