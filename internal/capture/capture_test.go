package capture

import (
	"path/filepath"
	"testing"
)

func TestRecorderWriteAndReadAll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capture.bin")

	rec, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	msgs := [][]byte{
		[]byte("packet-in-1"),
		[]byte("packet-out-1"),
		[]byte("packet-in-2"),
	}
	for _, m := range msgs {
		if err := rec.Capture(m); err != nil {
			t.Fatalf("Capture() error = %v", err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	records, err := ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(records) != len(msgs) {
		t.Fatalf("len(records) = %d; want %d", len(records), len(msgs))
	}
	for i, r := range records {
		if string(r.Payload) != string(msgs[i]) {
			t.Fatalf("record %d payload = %q; want %q", i, r.Payload, msgs[i])
		}
		if r.Timestamp <= 0 {
			t.Fatalf("record %d timestamp = %v; want > 0", i, r.Timestamp)
		}
	}
}

func TestRecorderAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capture.bin")

	rec, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	_ = rec.Capture([]byte("first"))
	rec.Close()

	rec2, err := Open(path)
	if err != nil {
		t.Fatalf("Open() (reopen) error = %v", err)
	}
	_ = rec2.Capture([]byte("second"))
	rec2.Close()

	records, err := ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d; want 2", len(records))
	}
	if string(records[0].Payload) != "first" || string(records[1].Payload) != "second" {
		t.Fatalf("records = %+v; want first, second in order", records)
	}
}
