package cache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/hupe1980/mediapool/internal/conv"
	"github.com/hupe1980/mediapool/internal/hash"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression defines the algorithm used for on-disk entries.
type Compression uint8

const (
	// CompressionNone stores entries verbatim.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast, modest ratio).
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses ZSTD (better ratio, more CPU).
	CompressionZSTD Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression maps a config string to a Compression.
// The empty string selects CompressionNone.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return CompressionNone, fmt.Errorf("unknown compression %q", s)
	}
}

var errCorruptEntry = errors.New("corrupt cache entry")

// Entry file layout:
//
//	[magic 'M' 'P'][version][codec][keyLen u16][rawLen u32][payloadLen u32][key][payload][crc32c u32]
//
// The checksum covers everything before it.
const (
	entryMagic0      = 'M'
	entryMagic1      = 'P'
	entryVersion     = 2
	entryHeaderSize  = 14
	entryTrailerSize = 4
	maxKeyLen        = 1<<16 - 1
)

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func compress(data []byte, c Compression) ([]byte, Compression) {
	if c == CompressionNone || len(data) == 0 {
		return data, CompressionNone
	}

	var out []byte
	switch c {
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil || n == 0 {
			return data, CompressionNone
		}
		out = buf[:n]
	case CompressionZSTD:
		enc := getZstdEncoder()
		out = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return data, CompressionNone
	}

	// Media is mostly pre-compressed; keep the raw bytes unless we win >10%.
	if float64(len(out)) > float64(len(data))*0.9 {
		return data, CompressionNone
	}
	return out, c
}

func decompress(payload []byte, c Compression, rawLen uint32) ([]byte, error) {
	switch c {
	case CompressionNone:
		if uint32(len(payload)) != rawLen {
			return nil, errCorruptEntry
		}
		return payload, nil
	case CompressionLZ4:
		out := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, err
		}
		if uint32(n) != rawLen {
			return nil, errCorruptEntry
		}
		return out, nil
	case CompressionZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(payload, make([]byte, 0, rawLen))
		if err != nil {
			return nil, err
		}
		if uint32(len(out)) != rawLen {
			return nil, errCorruptEntry
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown codec %d", errCorruptEntry, c)
	}
}

// encodeEntry frames key and data for disk.
func encodeEntry(key string, data []byte, c Compression) ([]byte, error) {
	if len(key) > maxKeyLen {
		return nil, fmt.Errorf("key too long: %d bytes", len(key))
	}
	rawLen, err := conv.IntToUint32(len(data))
	if err != nil {
		return nil, err
	}
	payload, used := compress(data, c)

	body := entryHeaderSize + len(key) + len(payload)
	buf := make([]byte, body+entryTrailerSize)
	buf[0] = entryMagic0
	buf[1] = entryMagic1
	buf[2] = entryVersion
	buf[3] = byte(used)
	binary.LittleEndian.PutUint16(buf[4:], uint16(len(key)))
	binary.LittleEndian.PutUint32(buf[6:], rawLen)
	binary.LittleEndian.PutUint32(buf[10:], uint32(len(payload)))
	copy(buf[entryHeaderSize:], key)
	copy(buf[entryHeaderSize+len(key):], payload)
	binary.LittleEndian.PutUint32(buf[body:], hash.CRC32C(buf[:body]))
	return buf, nil
}

type entryHeader struct {
	codec      Compression
	keyLen     uint16
	rawLen     uint32
	payloadLen uint32
}

func parseHeader(b []byte) (entryHeader, error) {
	if len(b) < entryHeaderSize || b[0] != entryMagic0 || b[1] != entryMagic1 || b[2] != entryVersion {
		return entryHeader{}, errCorruptEntry
	}
	return entryHeader{
		codec:      Compression(b[3]),
		keyLen:     binary.LittleEndian.Uint16(b[4:]),
		rawLen:     binary.LittleEndian.Uint32(b[6:]),
		payloadLen: binary.LittleEndian.Uint32(b[10:]),
	}, nil
}

// decodeEntry reverses encodeEntry.
func decodeEntry(raw []byte) (string, []byte, error) {
	h, err := parseHeader(raw)
	if err != nil {
		return "", nil, err
	}
	body := entryHeaderSize + int(h.keyLen) + int(h.payloadLen)
	if len(raw) != body+entryTrailerSize {
		return "", nil, errCorruptEntry
	}
	if hash.CRC32C(raw[:body]) != binary.LittleEndian.Uint32(raw[body:]) {
		return "", nil, fmt.Errorf("%w: checksum mismatch", errCorruptEntry)
	}
	key := string(raw[entryHeaderSize : entryHeaderSize+int(h.keyLen)])
	data, err := decompress(raw[entryHeaderSize+int(h.keyLen):body], h.codec, h.rawLen)
	if err != nil {
		return "", nil, err
	}
	return key, data, nil
}

// readEntryHeader reads only the framing and key, for the startup scan.
func readEntryHeader(r io.Reader) (string, uint32, error) {
	var hb [entryHeaderSize]byte
	if _, err := io.ReadFull(r, hb[:]); err != nil {
		return "", 0, err
	}
	h, err := parseHeader(hb[:])
	if err != nil {
		return "", 0, err
	}
	key := make([]byte, h.keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return "", 0, err
	}
	return string(key), h.rawLen, nil
}
