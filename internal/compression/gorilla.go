package compression

import (
	"math"
	"math/bits"
)

// Gorilla-style codecs for the three telemetry columns: delta-of-delta for
// timestamps, XOR for fill levels, and a plain bitset for lid flags.

type bitWriter struct {
	data    []byte
	current byte
	bitPos  uint8
}

func (bw *bitWriter) writeBits(value uint64, numBits uint8) {
	for numBits > 0 {
		left := 8 - bw.bitPos
		if numBits >= left {
			bw.current |= byte(value>>(numBits-left)) & ((1 << left) - 1)
			bw.data = append(bw.data, bw.current)
			bw.current = 0
			bw.bitPos = 0
			numBits -= left
		} else {
			shift := left - numBits
			bw.current |= byte(value<<shift) & ((1 << left) - 1)
			bw.bitPos += numBits
			numBits = 0
		}
	}
}

func (bw *bitWriter) finish() []byte {
	if bw.bitPos > 0 {
		bw.data = append(bw.data, bw.current)
	}
	return bw.data
}

type bitReader struct {
	data   []byte
	pos    int
	bitPos uint8
}

func (br *bitReader) readBits(numBits uint8) (uint64, bool) {
	var result uint64
	for numBits > 0 {
		if br.pos >= len(br.data) {
			return 0, false
		}
		left := 8 - br.bitPos
		if numBits >= left {
			mask := byte((1 << left) - 1)
			chunk := (br.data[br.pos] >> (8 - left - br.bitPos)) & mask
			result = (result << left) | uint64(chunk)
			numBits -= left
			br.pos++
			br.bitPos = 0
		} else {
			shift := left - numBits
			mask := byte((1 << numBits) - 1)
			chunk := (br.data[br.pos] >> shift) & mask
			result = (result << numBits) | uint64(chunk)
			br.bitPos += numBits
			numBits = 0
		}
	}
	return result, true
}

func signExtend(value int64, width uint8) int64 {
	shift := 64 - width
	return (value << shift) >> shift
}

// CompressTimestamps encodes monotonically sampled instants (unix
// milliseconds) with delta-of-delta encoding. Regular sampling intervals
// collapse to one bit per value.
func CompressTimestamps(values []int64) []byte {
	if len(values) == 0 {
		return nil
	}

	bw := &bitWriter{}
	bw.writeBits(uint64(values[0]), 64)
	if len(values) == 1 {
		return bw.finish()
	}

	prevValue := values[1]
	prevDelta := values[1] - values[0]
	bw.writeBits(uint64(prevDelta), 64)

	for i := 2; i < len(values); i++ {
		delta := values[i] - prevValue
		dod := delta - prevDelta

		switch {
		case dod == 0:
			bw.writeBits(0, 1)
		case dod >= -64 && dod <= 63:
			bw.writeBits(0b10, 2)
			bw.writeBits(uint64(dod&0x7F), 7)
		case dod >= -256 && dod <= 255:
			bw.writeBits(0b110, 3)
			bw.writeBits(uint64(dod&0x1FF), 9)
		case dod >= -2048 && dod <= 2047:
			bw.writeBits(0b1110, 4)
			bw.writeBits(uint64(dod&0xFFF), 12)
		default:
			bw.writeBits(0b1111, 4)
			bw.writeBits(uint64(dod), 64)
		}

		prevValue = values[i]
		prevDelta = delta
	}

	return bw.finish()
}

// DecompressTimestamps reverses CompressTimestamps. count is the number of
// values originally encoded.
func DecompressTimestamps(data []byte, count int) []int64 {
	if len(data) == 0 || count == 0 {
		return nil
	}

	br := &bitReader{data: data}
	result := make([]int64, 0, count)

	first, ok := br.readBits(64)
	if !ok {
		return result
	}
	result = append(result, int64(first))
	if count == 1 {
		return result
	}

	firstDelta, ok := br.readBits(64)
	if !ok {
		return result
	}
	prevValue := int64(first) + int64(firstDelta)
	prevDelta := int64(firstDelta)
	result = append(result, prevValue)

	for len(result) < count {
		dod, ok := readDeltaOfDelta(br)
		if !ok {
			break
		}
		prevDelta += dod
		prevValue += prevDelta
		result = append(result, prevValue)
	}

	return result
}

func readDeltaOfDelta(br *bitReader) (int64, bool) {
	bit, ok := br.readBits(1)
	if !ok {
		return 0, false
	}
	if bit == 0 {
		return 0, true
	}

	// Walk the prefix code: 10, 110, 1110, 1111.
	widths := []uint8{7, 9, 12}
	for _, w := range widths {
		bit, ok = br.readBits(1)
		if !ok {
			return 0, false
		}
		if bit == 0 {
			raw, ok := br.readBits(w)
			if !ok {
				return 0, false
			}
			return signExtend(int64(raw), w), true
		}
	}

	raw, ok := br.readBits(64)
	if !ok {
		return 0, false
	}
	return int64(raw), true
}

// CompressLevels encodes fill-level readings with XOR compression. A
// sensor that keeps reporting the same level costs one bit per reading.
func CompressLevels(values []float64) []byte {
	if len(values) == 0 {
		return nil
	}

	bw := &bitWriter{}
	prevBits := math.Float64bits(values[0])
	bw.writeBits(prevBits, 64)

	prevLeading := uint8(0)
	prevTrailing := uint8(0)

	for i := 1; i < len(values); i++ {
		curBits := math.Float64bits(values[i])
		xor := curBits ^ prevBits

		if xor == 0 {
			bw.writeBits(0, 1)
		} else {
			bw.writeBits(1, 1)

			leading := uint8(bits.LeadingZeros64(xor))
			trailing := uint8(bits.TrailingZeros64(xor))

			if leading >= prevLeading && trailing >= prevTrailing {
				// Fits inside the previous meaningful-bit window.
				bw.writeBits(0, 1)
				bw.writeBits(xor>>prevTrailing, 64-prevLeading-prevTrailing)
			} else {
				bw.writeBits(1, 1)
				bw.writeBits(uint64(leading), 6)
				meaningful := 64 - leading - trailing
				bw.writeBits(uint64(meaningful), 6)
				bw.writeBits(xor>>trailing, meaningful)
				prevLeading = leading
				prevTrailing = trailing
			}
		}
		prevBits = curBits
	}

	return bw.finish()
}

// DecompressLevels reverses CompressLevels.
func DecompressLevels(data []byte, count int) []float64 {
	if len(data) == 0 || count == 0 {
		return nil
	}

	br := &bitReader{data: data}
	result := make([]float64, 0, count)

	prevBits, ok := br.readBits(64)
	if !ok {
		return result
	}
	result = append(result, math.Float64frombits(prevBits))

	prevLeading := uint8(0)
	prevTrailing := uint8(0)

	for len(result) < count {
		control, ok := br.readBits(1)
		if !ok {
			break
		}
		if control == 0 {
			result = append(result, math.Float64frombits(prevBits))
			continue
		}

		window, ok := br.readBits(1)
		if !ok {
			break
		}

		var xor uint64
		if window == 0 {
			meaningful := 64 - prevLeading - prevTrailing
			raw, ok := br.readBits(meaningful)
			if !ok {
				break
			}
			xor = raw << prevTrailing
		} else {
			leading, ok := br.readBits(6)
			if !ok {
				break
			}
			meaningful, ok := br.readBits(6)
			if !ok {
				break
			}
			raw, ok := br.readBits(uint8(meaningful))
			if !ok {
				break
			}
			trailing := 64 - uint8(leading) - uint8(meaningful)
			xor = raw << trailing
			prevLeading = uint8(leading)
			prevTrailing = trailing
		}

		prevBits ^= xor
		result = append(result, math.Float64frombits(prevBits))
	}

	return result
}

// CompressFlags packs lid-open flags into a bitset, one bit per sample.
func CompressFlags(values []bool) []byte {
	if len(values) == 0 {
		return nil
	}
	bw := &bitWriter{}
	for _, v := range values {
		if v {
			bw.writeBits(1, 1)
		} else {
			bw.writeBits(0, 1)
		}
	}
	return bw.finish()
}

// DecompressFlags reverses CompressFlags.
func DecompressFlags(data []byte, count int) []bool {
	if len(data) == 0 || count == 0 {
		return nil
	}
	br := &bitReader{data: data}
	result := make([]bool, 0, count)
	for len(result) < count {
		bit, ok := br.readBits(1)
		if !ok {
			break
		}
		result = append(result, bit == 1)
	}
	return result
}
