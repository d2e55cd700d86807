package zlibstream

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// ErrCorruptStream reports compressed input the inflater cannot make sense
// of. The connection that produced it cannot be recovered; callers should
// drop it and reconnect.
var ErrCorruptStream = errors.New("zlibstream: corrupt compressed stream")

const (
	// windowSize is the deflate LZ77 window: the furthest back-references
	// can reach, and therefore all the history worth keeping.
	windowSize = 32 * 1024

	// zlibHeaderSize is the fixed CMF+FLG prefix of a dictionary-less
	// zlib stream.
	zlibHeaderSize = 2
)

// syncMarker terminates every complete message in the stream.
var syncMarker = []byte{0x00, 0x00, 0xff, 0xff}

// finalBlock is an empty final stored block. Appending it to a message's
// deflate data lets the flate reader finish with a clean EOF instead of
// io.ErrUnexpectedEOF, since the real stream never ends.
var finalBlock = []byte{0x01, 0x00, 0x00, 0xff, 0xff}

// Inflater reassembles and decompresses one connection's zlib stream.
type Inflater struct {
	buf  []byte // compressed bytes of the in-flight message
	dict []byte // trailing window of all plaintext produced so far

	fr         io.ReadCloser // pooled flate reader, reset per message
	headerDone bool

	compressed   uint64
	decompressed uint64
	messages     uint64
}

// NewInflater returns an inflater for a fresh connection.
func NewInflater() *Inflater {
	return &Inflater{
		buf:  make([]byte, 0, 4096),
		dict: make([]byte, 0, windowSize),
	}
}

// Feed appends one websocket frame to the stream. When the frame completes a
// message, Feed returns the decompressed payload and true. Otherwise it
// returns nil and false, and the bytes stay buffered for the next call.
//
// The returned slice is freshly allocated; callers may retain it.
func (i *Inflater) Feed(frame []byte) ([]byte, bool, error) {
	i.buf = append(i.buf, frame...)
	if !i.complete() {
		return nil, false, nil
	}

	data := i.buf
	if !i.headerDone {
		var err error
		if data, err = stripHeader(data); err != nil {
			return nil, false, err
		}
		i.headerDone = true
	}

	msg, err := i.inflate(data)
	if err != nil {
		return nil, false, err
	}

	i.compressed += uint64(len(i.buf))
	i.decompressed += uint64(len(msg))
	i.messages++
	i.buf = i.buf[:0]
	i.slideWindow(msg)

	return msg, true, nil
}

// complete reports whether the buffered bytes end on a sync flush marker.
func (i *Inflater) complete() bool {
	return len(i.buf) >= len(syncMarker) && bytes.HasSuffix(i.buf, syncMarker)
}

// inflate decompresses one message's deflate data against the current
// dictionary.
func (i *Inflater) inflate(data []byte) ([]byte, error) {
	src := io.MultiReader(bytes.NewReader(data), bytes.NewReader(finalBlock))
	if i.fr == nil {
		i.fr = flate.NewReaderDict(src, i.dict)
	} else if err := i.fr.(flate.Resetter).Reset(src, i.dict); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptStream, err)
	}

	msg, err := io.ReadAll(i.fr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptStream, err)
	}
	return msg, nil
}

// stripHeader validates and removes the two-byte zlib header that precedes
// the first message of every connection.
func stripHeader(data []byte) ([]byte, error) {
	if len(data) < zlibHeaderSize {
		return nil, fmt.Errorf("%w: short zlib header", ErrCorruptStream)
	}
	cmf, flg := data[0], data[1]
	if cmf&0x0f != 8 {
		return nil, fmt.Errorf("%w: compression method %d", ErrCorruptStream, cmf&0x0f)
	}
	if flg&0x20 != 0 {
		return nil, fmt.Errorf("%w: preset dictionary not supported", ErrCorruptStream)
	}
	if (uint16(cmf)<<8|uint16(flg))%31 != 0 {
		return nil, fmt.Errorf("%w: zlib header check failed", ErrCorruptStream)
	}
	return data[zlibHeaderSize:], nil
}

// slideWindow folds a message's plaintext into the dictionary, keeping only
// the last windowSize bytes.
func (i *Inflater) slideWindow(msg []byte) {
	if len(msg) >= windowSize {
		i.dict = append(i.dict[:0], msg[len(msg)-windowSize:]...)
		return
	}
	if keep := windowSize - len(msg); len(i.dict) > keep {
		copy(i.dict, i.dict[len(i.dict)-keep:])
		i.dict = i.dict[:keep]
	}
	i.dict = append(i.dict, msg...)
}

// Reset discards all buffered input and window state, readying the inflater
// for a brand-new connection.
func (i *Inflater) Reset() {
	i.buf = i.buf[:0]
	i.dict = i.dict[:0]
	i.headerDone = false
}

// Compressed returns the total compressed bytes consumed across all
// completed messages.
func (i *Inflater) Compressed() uint64 { return i.compressed }

// Decompressed returns the total plaintext bytes produced.
func (i *Inflater) Decompressed() uint64 { return i.decompressed }

// Messages returns the number of complete messages inflated.
func (i *Inflater) Messages() uint64 { return i.messages }
