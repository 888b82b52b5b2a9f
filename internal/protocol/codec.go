package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

const (
	// Version is bumped on any incompatible wire change.
	Version uint16 = 1

	// HeaderSize is version(2) + type(1) + flags(1) + length(4).
	HeaderSize = 8

	// MaxMessageSize bounds a payload on the wire.
	MaxMessageSize = 1024 * 1024

	// DefaultCompressThreshold is the payload size above which zstd kicks in.
	DefaultCompressThreshold = 1024

	flagZstd byte = 1 << 0
)

var (
	ErrUnknownType      = errors.New("protocol: unknown message type")
	ErrVersionMismatch  = errors.New("protocol: version mismatch")
	ErrMessageTooLarge  = errors.New("protocol: message too large")
	ErrShortMessage     = errors.New("protocol: short message")
	ErrProtocolMismatch = errors.New("protocol: protocol id mismatch")
)

// Header frames every message.
type Header struct {
	Version uint16
	Type    Type
	Flags   byte
	Length  uint32
}

func (h Header) put(b []byte) {
	binary.LittleEndian.PutUint16(b[0:2], h.Version)
	b[2] = byte(h.Type)
	b[3] = h.Flags
	binary.LittleEndian.PutUint32(b[4:8], h.Length)
}

func parseHeader(b []byte) Header {
	return Header{
		Version: binary.LittleEndian.Uint16(b[0:2]),
		Type:    Type(b[2]),
		Flags:   b[3],
		Length:  binary.LittleEndian.Uint32(b[4:8]),
	}
}

// Codec frames messages as header + gob payload, compressing payloads larger
// than CompressThreshold with zstd. The zero value never compresses.
// A Codec is safe for concurrent use.
type Codec struct {
	CompressThreshold int
}

// NewCodec returns a codec compressing above threshold bytes. A threshold of
// zero or less disables compression.
func NewCodec(threshold int) *Codec {
	return &Codec{CompressThreshold: threshold}
}

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
	zstdErr  error
)

func zstdCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEnc, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if zstdErr != nil {
			return
		}
		zstdDec, zstdErr = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxMessageSize))
	})
	return zstdEnc, zstdDec, zstdErr
}

var bufferPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// Encode frames msg.
func (c *Codec) Encode(msg Message) ([]byte, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	if err := gob.NewEncoder(buf).Encode(msg); err != nil {
		return nil, fmt.Errorf("gob encode %s: %w", msg.Type(), err)
	}
	payload := buf.Bytes()

	var flags byte
	if c != nil && c.CompressThreshold > 0 && len(payload) > c.CompressThreshold {
		enc, _, err := zstdCodec()
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		payload = enc.EncodeAll(payload, nil)
		flags |= flagZstd
	}

	if len(payload) > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(payload), MaxMessageSize)
	}

	out := make([]byte, HeaderSize+len(payload))
	Header{Version: Version, Type: msg.Type(), Flags: flags, Length: uint32(len(payload))}.put(out)
	copy(out[HeaderSize:], payload)
	return out, nil
}

// Decode parses one framed message.
func (c *Codec) Decode(data []byte) (Message, error) {
	if len(data) < HeaderSize {
		return nil, ErrShortMessage
	}
	h := parseHeader(data)
	if h.Version != Version {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, h.Version, Version)
	}
	if h.Length > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, h.Length, MaxMessageSize)
	}
	if uint32(len(data)-HeaderSize) != h.Length {
		return nil, fmt.Errorf("%w: header says %d, have %d", ErrShortMessage, h.Length, len(data)-HeaderSize)
	}
	msg, ok := newMessage(h.Type)
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownType, byte(h.Type))
	}

	payload := data[HeaderSize:]
	if h.Flags&flagZstd != 0 {
		_, dec, err := zstdCodec()
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		payload, err = dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decode %s: %w", h.Type, err)
		}
	}

	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(msg); err != nil {
		return nil, fmt.Errorf("gob decode %s: %w", h.Type, err)
	}
	return msg, nil
}

// Compressed reports whether a framed message carries a zstd payload.
func Compressed(data []byte) bool {
	return len(data) >= HeaderSize && data[3]&flagZstd != 0
}

// CheckHello validates a client's opening message.
func CheckHello(h *Hello, protocolID uint64) error {
	if h.Version != Version {
		return fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, h.Version, Version)
	}
	if h.ProtocolID != protocolID {
		return fmt.Errorf("%w: got %d, want %d", ErrProtocolMismatch, h.ProtocolID, protocolID)
	}
	return nil
}
