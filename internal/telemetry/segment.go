package telemetry

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/binwatch/internal/compression"
	"github.com/binwatch/internal/models"
)

// Segment file layout: a fixed header followed by three length-prefixed
// compressed columns (timestamps, fill levels, lid flags).
//
//	[magic u32][version u32][count u64]
//	[len u32][timestamp column]
//	[len u32][level column]
//	[len u32][flag column]
const (
	segmentMagic   = 0x42494E57 // "BINW"
	segmentVersion = 1
	headerSize     = 16
)

type segmentFile struct {
	path string
}

func (sf *segmentFile) write(samples []models.Sample) error {
	if len(samples) == 0 {
		return fmt.Errorf("no samples to write")
	}

	timestamps := make([]int64, len(samples))
	levels := make([]float64, len(samples))
	flags := make([]bool, len(samples))
	for i, s := range samples {
		timestamps[i] = s.Timestamp.UnixMilli()
		levels[i] = s.FillLevel
		flags[i] = s.LidOpen
	}

	tmp := sf.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create segment: %w", err)
	}

	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(header[0:4], segmentMagic)
	binary.LittleEndian.PutUint32(header[4:8], segmentVersion)
	binary.LittleEndian.PutUint64(header[8:16], uint64(len(samples)))
	if _, err := f.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("write header: %w", err)
	}

	columns := [][]byte{
		compression.CompressTimestamps(timestamps),
		compression.CompressLevels(levels),
		compression.CompressFlags(flags),
	}
	for _, col := range columns {
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(col)))
		if _, err := f.Write(lenBuf[:]); err != nil {
			f.Close()
			return fmt.Errorf("write column length: %w", err)
		}
		if _, err := f.Write(col); err != nil {
			f.Close()
			return fmt.Errorf("write column: %w", err)
		}
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close segment: %w", err)
	}
	if err := os.Rename(tmp, sf.path); err != nil {
		return fmt.Errorf("replace segment: %w", err)
	}
	return nil
}

func (sf *segmentFile) read() ([]models.Sample, error) {
	data, err := os.ReadFile(sf.path)
	if err != nil {
		return nil, fmt.Errorf("read segment: %w", err)
	}
	if len(data) < headerSize {
		return nil, fmt.Errorf("segment too small")
	}

	if binary.LittleEndian.Uint32(data[0:4]) != segmentMagic {
		return nil, fmt.Errorf("invalid segment magic")
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != segmentVersion {
		return nil, fmt.Errorf("unsupported segment version %d", v)
	}
	count := int(binary.LittleEndian.Uint64(data[8:16]))

	pos := headerSize
	columns := make([][]byte, 0, 3)
	for i := 0; i < 3; i++ {
		if pos+4 > len(data) {
			return nil, fmt.Errorf("truncated column length")
		}
		colLen := int(binary.LittleEndian.Uint32(data[pos : pos+4]))
		pos += 4
		if pos+colLen > len(data) {
			return nil, fmt.Errorf("truncated column data")
		}
		columns = append(columns, data[pos:pos+colLen])
		pos += colLen
	}

	timestamps := compression.DecompressTimestamps(columns[0], count)
	levels := compression.DecompressLevels(columns[1], count)
	flags := compression.DecompressFlags(columns[2], count)
	if len(timestamps) != count || len(levels) != count || len(flags) != count {
		return nil, fmt.Errorf("segment column count mismatch")
	}

	samples := make([]models.Sample, count)
	for i := 0; i < count; i++ {
		samples[i] = models.Sample{
			Timestamp: time.UnixMilli(timestamps[i]),
			FillLevel: levels[i],
			LidOpen:   flags[i],
		}
	}
	return samples, nil
}
