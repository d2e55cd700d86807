package zlibstream

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/klauspost/compress/zlib"
)

// compressStream writes each message through a single zlib stream with a
// sync flush after every message, mirroring how the gateway frames its
// output. The returned chunks are the per-message wire frames; the first
// one carries the zlib header.
func compressStream(t *testing.T, msgs ...[]byte) [][]byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	chunks := make([][]byte, 0, len(msgs))
	prev := 0
	for _, m := range msgs {
		if _, err := w.Write(m); err != nil {
			t.Fatalf("compress: %v", err)
		}
		if err := w.Flush(); err != nil {
			t.Fatalf("flush: %v", err)
		}
		chunk := make([]byte, buf.Len()-prev)
		copy(chunk, buf.Bytes()[prev:])
		chunks = append(chunks, chunk)
		prev = buf.Len()
	}
	return chunks
}

func TestInflaterSingleMessage(t *testing.T) {
	want := []byte(`{"op":10,"d":{"heartbeat_interval":41250}}`)
	chunks := compressStream(t, want)

	inf := NewInflater()
	got, ok, err := inf.Feed(chunks[0])
	if err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if !ok {
		t.Fatal("Feed() ok = false, want true")
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Feed() = %s, want %s", got, want)
	}
}

func TestInflaterSharedWindow(t *testing.T) {
	// Later messages repeat earlier content so the encoder emits
	// back-references across the flush boundaries. Decoding only works if
	// the dictionary is carried between messages.
	base := `{"op":0,"t":"MESSAGE_CREATE","d":{"content":"the quick brown fox jumps over the lazy dog"}`
	var msgs [][]byte
	for i := 0; i < 10; i++ {
		msgs = append(msgs, []byte(fmt.Sprintf(`%s,"s":%d}`, base, i)))
	}
	chunks := compressStream(t, msgs...)

	inf := NewInflater()
	for n, chunk := range chunks {
		got, ok, err := inf.Feed(chunk)
		if err != nil {
			t.Fatalf("message %d: Feed() error = %v", n, err)
		}
		if !ok {
			t.Fatalf("message %d: Feed() ok = false", n)
		}
		if !bytes.Equal(got, msgs[n]) {
			t.Errorf("message %d: got %s, want %s", n, got, msgs[n])
		}
	}
}

func TestInflaterFrameReassembly(t *testing.T) {
	want := []byte(strings.Repeat("payload ", 100))
	chunks := compressStream(t, want)
	frame := chunks[0]

	// Split two bytes from the end so the sync marker itself straddles the
	// frame boundary.
	cut := len(frame) - 2

	inf := NewInflater()
	got, ok, err := inf.Feed(frame[:cut])
	if err != nil {
		t.Fatalf("Feed(head) error = %v", err)
	}
	if ok {
		t.Fatalf("Feed(head) ok = true, want false (got %d bytes)", len(got))
	}

	got, ok, err = inf.Feed(frame[cut:])
	if err != nil {
		t.Fatalf("Feed(tail) error = %v", err)
	}
	if !ok {
		t.Fatal("Feed(tail) ok = false, want true")
	}
	if !bytes.Equal(got, want) {
		t.Errorf("reassembled = %q, want %q", got, want)
	}
}

func TestInflaterByteAtATime(t *testing.T) {
	msgs := [][]byte{
		[]byte(`{"op":10,"d":{"heartbeat_interval":41250}}`),
		[]byte(`{"op":11}`),
		[]byte(`{"op":0,"t":"READY","s":1,"d":{"session_id":"abc"}}`),
	}
	chunks := compressStream(t, msgs...)

	inf := NewInflater()
	var got [][]byte
	for _, chunk := range chunks {
		for _, b := range chunk {
			msg, ok, err := inf.Feed([]byte{b})
			if err != nil {
				t.Fatalf("Feed() error = %v", err)
			}
			if ok {
				got = append(got, msg)
			}
		}
	}

	if len(got) != len(msgs) {
		t.Fatalf("decoded %d messages, want %d", len(got), len(msgs))
	}
	for n := range msgs {
		if !bytes.Equal(got[n], msgs[n]) {
			t.Errorf("message %d: got %s, want %s", n, got[n], msgs[n])
		}
	}
}

func TestInflaterEmptyFrame(t *testing.T) {
	inf := NewInflater()
	msg, ok, err := inf.Feed(nil)
	if err != nil {
		t.Fatalf("Feed(nil) error = %v", err)
	}
	if ok || msg != nil {
		t.Errorf("Feed(nil) = %v, %v, want nil, false", msg, ok)
	}
}

func TestInflaterBadHeader(t *testing.T) {
	inf := NewInflater()
	// Compression method 0 instead of deflate, padded out to a marker so
	// the inflater attempts the decode.
	_, _, err := inf.Feed([]byte{0x00, 0x00, 0x00, 0x00, 0xff, 0xff})
	if !errors.Is(err, ErrCorruptStream) {
		t.Errorf("Feed() error = %v, want ErrCorruptStream", err)
	}
}

func TestInflaterCorruptData(t *testing.T) {
	inf := NewInflater()
	// Valid header, then a reserved deflate block type.
	_, _, err := inf.Feed([]byte{0x78, 0x9c, 0xde, 0xad, 0x00, 0x00, 0xff, 0xff})
	if !errors.Is(err, ErrCorruptStream) {
		t.Errorf("Feed() error = %v, want ErrCorruptStream", err)
	}
}

func TestInflaterCounters(t *testing.T) {
	msgs := [][]byte{
		[]byte(strings.Repeat("a", 1000)),
		[]byte(strings.Repeat("b", 500)),
	}
	chunks := compressStream(t, msgs...)

	inf := NewInflater()
	for _, chunk := range chunks {
		if _, _, err := inf.Feed(chunk); err != nil {
			t.Fatalf("Feed() error = %v", err)
		}
	}

	if got, want := inf.Messages(), uint64(2); got != want {
		t.Errorf("Messages() = %d, want %d", got, want)
	}
	if got, want := inf.Decompressed(), uint64(1500); got != want {
		t.Errorf("Decompressed() = %d, want %d", got, want)
	}
	if inf.Compressed() == 0 {
		t.Error("Compressed() = 0, want > 0")
	}
	if inf.Compressed() >= inf.Decompressed() {
		t.Errorf("Compressed() = %d not smaller than Decompressed() = %d on repetitive input",
			inf.Compressed(), inf.Decompressed())
	}
}

func TestInflaterReset(t *testing.T) {
	first := compressStream(t, []byte("first connection"))
	inf := NewInflater()
	if _, ok, err := inf.Feed(first[0]); err != nil || !ok {
		t.Fatalf("Feed() = ok %v, err %v", ok, err)
	}

	// A new connection starts a new stream with its own header.
	inf.Reset()
	want := []byte("second connection")
	second := compressStream(t, want)
	got, ok, err := inf.Feed(second[0])
	if err != nil {
		t.Fatalf("Feed() after Reset error = %v", err)
	}
	if !ok {
		t.Fatal("Feed() after Reset ok = false")
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Feed() after Reset = %q, want %q", got, want)
	}
}
