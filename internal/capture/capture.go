// Package capture implements the append-only trace format spec.md §6
// describes: every PACKET_IN and PACKET_OUT the proxy forwards is
// recorded as (timestamp float64, length int32, payload bytes),
// little-endian, so an offline analyser can pair a PACKET_IN with the
// PACKET_OUT answering it through the encapsulated frame, as
// original_source's measure_post_processing.py does with its
// native-order struct.unpack calls.
package capture

import (
	"encoding/binary"
	"io"
	"math"
	"os"
	"sync"
	"time"
)

// Recorder writes capture records to an append-only file, flushing
// after every write so a crash loses at most the in-flight record.
type Recorder struct {
	mu   sync.Mutex
	file *os.File
	now  func() time.Time
}

// Open creates or appends to the capture file at path.
func Open(path string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Recorder{file: f, now: time.Now}, nil
}

// Capture writes one record for msg, implementing
// internal/ofproxy.CaptureWriter.
func (r *Recorder) Capture(msg []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var header [12]byte
	ts := float64(r.now().UnixNano()) / float64(time.Second)
	binary.LittleEndian.PutUint64(header[0:8], math.Float64bits(ts))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(msg)))

	if _, err := r.file.Write(header[:]); err != nil {
		return err
	}
	if _, err := r.file.Write(msg); err != nil {
		return err
	}
	return r.file.Sync()
}

// Close closes the underlying capture file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}

// Record is one decoded capture entry, returned by ReadAll.
type Record struct {
	Timestamp float64
	Payload   []byte
}

// ReadAll decodes every record from an existing capture file, for
// offline analysis and tests.
func ReadAll(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []Record
	for {
		var header [12]byte
		if _, err := io.ReadFull(f, header[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		ts := math.Float64frombits(binary.LittleEndian.Uint64(header[0:8]))
		length := binary.LittleEndian.Uint32(header[8:12])

		payload := make([]byte, length)
		if _, err := io.ReadFull(f, payload); err != nil {
			return nil, err
		}
		records = append(records, Record{Timestamp: ts, Payload: payload})
	}
	return records, nil
}
