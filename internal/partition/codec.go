package partition

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
)

// MagicBytes identifies a partition file.
const (
	MagicBytes    uint32 = 0x41495054
	FormatVersion uint32 = 1
	HeaderSize    int    = 32
)

const flagZstd uint32 = 1 << 0

// Header is the fixed 32-byte prefix of every partition file.
//
//	[0:4]   magic
//	[4:8]   format version
//	[8:12]  flags
//	[12:16] entry count
//	[16:24] payload length
//	[24:32] xxhash64 of the stored payload
type Header struct {
	Magic      uint32
	Version    uint32
	Flags      uint32
	Entries    uint32
	PayloadLen uint64
	Checksum   uint64
}

func (h Header) Compressed() bool { return h.Flags&flagZstd != 0 }

var (
	encoderOnce sync.Once
	encoder     *zstd.Encoder
	encoderErr  error
	decoderOnce sync.Once
	decoder     *zstd.Decoder
	decoderErr  error
)

func zstdEncoder() (*zstd.Encoder, error) {
	encoderOnce.Do(func() {
		encoder, encoderErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	return encoder, encoderErr
}

func zstdDecoder() (*zstd.Decoder, error) {
	decoderOnce.Do(func() {
		decoder, decoderErr = zstd.NewReader(nil)
	})
	return decoder, decoderErr
}

// Encode serialises v as JSON behind a partition header.
func Encode(v any, entries int, compress bool) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}
	var flags uint32
	if compress {
		enc, err := zstdEncoder()
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		payload = enc.EncodeAll(payload, make([]byte, 0, len(payload)/2))
		flags |= flagZstd
	}

	buf := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(buf[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(buf[8:12], flags)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(entries))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(len(payload)))
	binary.LittleEndian.PutUint64(buf[24:32], xxhash.Sum64(payload))
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// DecodeHeader validates and returns the header at the start of data.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("partition too short: %d bytes", len(data))
	}
	h := Header{
		Magic:      binary.LittleEndian.Uint32(data[0:4]),
		Version:    binary.LittleEndian.Uint32(data[4:8]),
		Flags:      binary.LittleEndian.Uint32(data[8:12]),
		Entries:    binary.LittleEndian.Uint32(data[12:16]),
		PayloadLen: binary.LittleEndian.Uint64(data[16:24]),
		Checksum:   binary.LittleEndian.Uint64(data[24:32]),
	}
	if h.Magic != MagicBytes {
		return Header{}, fmt.Errorf("invalid partition file: bad magic bytes %x", h.Magic)
	}
	if h.Version != FormatVersion {
		return Header{}, fmt.Errorf("unsupported partition format version %d", h.Version)
	}
	return h, nil
}

// Decode verifies data and unmarshals its payload into v.
func Decode(data []byte, v any) (Header, error) {
	h, err := DecodeHeader(data)
	if err != nil {
		return Header{}, err
	}
	payload := data[HeaderSize:]
	if uint64(len(payload)) != h.PayloadLen {
		return Header{}, fmt.Errorf("truncated partition: payload %d of %d bytes", len(payload), h.PayloadLen)
	}
	if sum := xxhash.Sum64(payload); sum != h.Checksum {
		return Header{}, fmt.Errorf("partition checksum mismatch: got %x want %x", sum, h.Checksum)
	}
	if h.Compressed() {
		dec, err := zstdDecoder()
		if err != nil {
			return Header{}, fmt.Errorf("creating zstd decoder: %w", err)
		}
		payload, err = dec.DecodeAll(payload, nil)
		if err != nil {
			return Header{}, fmt.Errorf("decompressing payload: %w", err)
		}
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return Header{}, fmt.Errorf("parsing payload: %w", err)
	}
	return h, nil
}
