// Package compression provides the block codecs used for column payloads.
//
// A payload is compressed as a single block and the decompressed size is
// stored next to it, so decompression always knows the exact output length.
//
//	None   payload stored as is
//	LZ4    raw LZ4 block, fast mode
//	LZ4HC  raw LZ4 block, high-compression mode (level 1-9)
//	Zstd   one zstd frame (level 1-22, mapped with zstd.EncoderLevelFromZstd)
//
// # Basic Usage
//
//	packed, err := compression.Compress(compression.Zstd, 3, payload)
//	...
//	payload, err = compression.Decompress(compression.Zstd, packed, len(payload))
//
// Codecs are cached per (type, level) and are safe for concurrent use.
package compression

import (
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/ajitpratap0/strata/pkg/errors"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type identifies a compression codec. The numeric values are stored on disk.
type Type uint32

const (
	// None stores payloads uncompressed
	None Type = iota
	// LZ4 uses LZ4 block compression
	LZ4
	// LZ4HC uses LZ4 high-compression block mode
	LZ4HC
	// Zstd uses Zstandard
	Zstd
)

var typeNames = [...]string{"none", "lz4", "lz4hc", "zstd"}

func (t Type) String() string {
	if t.Valid() {
		return typeNames[t]
	}
	return "compression(" + strconv.FormatUint(uint64(t), 10) + ")"
}

// Valid reports whether t is a known codec.
func (t Type) Valid() bool {
	return t <= Zstd
}

// ParseType parses a codec name as printed by Type.String.
func ParseType(s string) (Type, error) {
	for i, name := range typeNames {
		if strings.EqualFold(s, name) {
			return Type(i), nil
		}
	}
	return 0, errors.Newf(errors.ErrorTypeConfig, "unknown compression %q", s)
}

// DefaultLevel returns the level used when none is configured.
func DefaultLevel(t Type) int {
	switch t {
	case LZ4HC:
		return 9
	case Zstd:
		return 3
	default:
		return 0
	}
}

// Codec compresses and decompresses single blocks.
type Codec interface {
	// Compress appends the compressed form of src to dst.
	Compress(dst, src []byte) ([]byte, error)

	// Decompress decodes src into a buffer of exactly size bytes. It fails if
	// the decoded length differs.
	Decompress(src []byte, size int) ([]byte, error)

	// Type returns the codec type.
	Type() Type

	// Level returns the configured level.
	Level() int
}

type codecKey struct {
	typ   Type
	level int
}

var codecs sync.Map // codecKey -> Codec

// NewCodec returns a codec for t at the given level.
func NewCodec(t Type, level int) (Codec, error) {
	switch t {
	case None:
		return noneCodec{}, nil
	case LZ4:
		return &lz4Codec{level: level}, nil
	case LZ4HC:
		return newLZ4HCCodec(level)
	case Zstd:
		return newZstdCodec(level), nil
	default:
		return nil, errors.Newf(errors.ErrorTypeCompression, "unsupported compression type %d", uint32(t))
	}
}

// Get returns a shared codec for t at level, creating it on first use.
func Get(t Type, level int) (Codec, error) {
	key := codecKey{t, level}
	if c, ok := codecs.Load(key); ok {
		return c.(Codec), nil
	}
	c, err := NewCodec(t, level)
	if err != nil {
		return nil, err
	}
	actual, _ := codecs.LoadOrStore(key, c)
	return actual.(Codec), nil
}

// Compress compresses src with a shared codec.
func Compress(t Type, level int, src []byte) ([]byte, error) {
	c, err := Get(t, level)
	if err != nil {
		return nil, err
	}
	return c.Compress(nil, src)
}

// Decompress decodes src, which must expand to exactly size bytes.
func Decompress(t Type, src []byte, size int) ([]byte, error) {
	c, err := Get(t, DefaultLevel(t))
	if err != nil {
		return nil, err
	}
	return c.Decompress(src, size)
}

const (
	// lz4MaxRatio bounds an LZ4 block: every 255 bytes of match length cost
	// at least one input byte.
	lz4MaxRatio = 255
	// zstdMaxRatio bounds a zstd frame: a block decodes to at most 128KiB and
	// takes at least four bytes.
	zstdMaxRatio = 128 << 10 / 4
)

// MaxExpansion returns the largest number of bytes n bytes compressed with t
// can decode to.
func MaxExpansion(t Type, n uint64) uint64 {
	ratio := uint64(1)
	switch t {
	case LZ4, LZ4HC:
		ratio = lz4MaxRatio
	case Zstd:
		ratio = zstdMaxRatio
	}
	if n > math.MaxUint64/ratio {
		return math.MaxUint64
	}
	return n * ratio
}

// checkExpansion rejects a target size src cannot produce before any buffer
// is allocated for it.
func checkExpansion(t Type, src []byte, size int) error {
	if size < 0 {
		return errors.Newf(errors.ErrorTypeCompression, "%s: negative decompressed size %d", t, size).
			WithDetail("expected", size)
	}
	if uint64(size) > MaxExpansion(t, uint64(len(src))) {
		return errors.Newf(errors.ErrorTypeCompression, "%s: %d bytes cannot decode to %d", t, len(src), size).
			WithDetail("expected", size).
			WithDetail("compressed", len(src))
	}
	return nil
}

func sizeMismatch(t Type, want, got int) error {
	return errors.Newf(errors.ErrorTypeCompression, "%s: decompressed %d bytes, expected %d", t, got, want).
		WithDetail("expected", want).
		WithDetail("actual", got)
}

type noneCodec struct{}

func (noneCodec) Compress(dst, src []byte) ([]byte, error) {
	return append(dst, src...), nil
}

func (noneCodec) Decompress(src []byte, size int) ([]byte, error) {
	if err := checkExpansion(None, src, size); err != nil {
		return nil, err
	}
	if len(src) != size {
		return nil, sizeMismatch(None, size, len(src))
	}
	out := make([]byte, size)
	copy(out, src)
	return out, nil
}

func (noneCodec) Type() Type { return None }
func (noneCodec) Level() int { return 0 }

// LZ4 fast mode. The block API has no acceleration knob, so the level is
// recorded but does not change the output.
type lz4Codec struct {
	level int
}

func (c *lz4Codec) Compress(dst, src []byte) ([]byte, error) {
	var comp lz4.Compressor
	return compressLZ4(dst, src, func(in, out []byte) (int, error) {
		return comp.CompressBlock(in, out)
	})
}

func (c *lz4Codec) Decompress(src []byte, size int) ([]byte, error) {
	return decompressLZ4(LZ4, src, size)
}

func (c *lz4Codec) Type() Type { return LZ4 }
func (c *lz4Codec) Level() int { return c.level }

var lz4Levels = [...]lz4.CompressionLevel{
	lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4, lz4.Level5,
	lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
}

type lz4HCCodec struct {
	level int
	depth lz4.CompressionLevel
}

func newLZ4HCCodec(level int) (*lz4HCCodec, error) {
	if level == 0 {
		level = DefaultLevel(LZ4HC)
	}
	if level < 1 || level > len(lz4Levels) {
		return nil, errors.Newf(errors.ErrorTypeCompression, "lz4hc level %d out of range 1-%d", level, len(lz4Levels))
	}
	return &lz4HCCodec{level: level, depth: lz4Levels[level-1]}, nil
}

func (c *lz4HCCodec) Compress(dst, src []byte) ([]byte, error) {
	comp := lz4.CompressorHC{Level: c.depth}
	return compressLZ4(dst, src, func(in, out []byte) (int, error) {
		return comp.CompressBlock(in, out)
	})
}

func (c *lz4HCCodec) Decompress(src []byte, size int) ([]byte, error) {
	return decompressLZ4(LZ4HC, src, size)
}

func (c *lz4HCCodec) Type() Type { return LZ4HC }
func (c *lz4HCCodec) Level() int { return c.level }

func compressLZ4(dst, src []byte, block func(in, out []byte) (int, error)) ([]byte, error) {
	if len(src) == 0 {
		return dst, nil
	}
	start := len(dst)
	bound := lz4.CompressBlockBound(len(src))
	if cap(dst)-start < bound {
		grown := make([]byte, start, start+bound)
		copy(grown, dst)
		dst = grown
	}
	n, err := block(src, dst[start:start+bound])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCompression, "lz4 compress")
	}
	if n == 0 {
		return nil, errors.New(errors.ErrorTypeCompression, "lz4 compress produced no output")
	}
	return dst[:start+n], nil
}

func decompressLZ4(t Type, src []byte, size int) ([]byte, error) {
	if err := checkExpansion(t, src, size); err != nil {
		return nil, err
	}
	out := make([]byte, size)
	if size == 0 {
		if len(src) != 0 {
			return nil, sizeMismatch(t, 0, len(src))
		}
		return out, nil
	}
	n, err := lz4.UncompressBlock(src, out)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCompression, t.String()+" decompress")
	}
	if n != size {
		return nil, sizeMismatch(t, size, n)
	}
	return out, nil
}

type zstdCodec struct {
	level       int
	encoderPool sync.Pool
}

// Decoders do not depend on the level, so all zstd codecs share one pool.
var zstdDecoderPool = sync.Pool{
	New: func() interface{} {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return err
		}
		return dec
	},
}

func newZstdCodec(level int) *zstdCodec {
	if level == 0 {
		level = DefaultLevel(Zstd)
	}
	zc := &zstdCodec{level: level}
	encLevel := zstd.EncoderLevelFromZstd(level)
	zc.encoderPool.New = func() interface{} {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encLevel), zstd.WithEncoderConcurrency(1))
		if err != nil {
			return err
		}
		return enc
	}
	return zc
}

func (zc *zstdCodec) Compress(dst, src []byte) ([]byte, error) {
	if len(src) == 0 {
		return dst, nil
	}
	switch enc := zc.encoderPool.Get().(type) {
	case *zstd.Encoder:
		defer zc.encoderPool.Put(enc)
		return enc.EncodeAll(src, dst), nil
	case error:
		return nil, errors.Wrap(enc, errors.ErrorTypeCompression, "zstd encoder")
	}
	return nil, errors.New(errors.ErrorTypeInternal, "zstd encoder pool returned unexpected value")
}

func (zc *zstdCodec) Decompress(src []byte, size int) ([]byte, error) {
	if err := checkExpansion(Zstd, src, size); err != nil {
		return nil, err
	}
	var hdr zstd.Header
	if err := hdr.Decode(src); err == nil && hdr.HasFCS && hdr.FrameContentSize != uint64(size) {
		return nil, sizeMismatch(Zstd, size, int(min(hdr.FrameContentSize, math.MaxInt)))
	}
	if size == 0 {
		if len(src) != 0 {
			return nil, sizeMismatch(Zstd, 0, len(src))
		}
		return []byte{}, nil
	}
	switch dec := zstdDecoderPool.Get().(type) {
	case *zstd.Decoder:
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(src, make([]byte, 0, size))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeCompression, "zstd decompress")
		}
		if len(out) != size {
			return nil, sizeMismatch(Zstd, size, len(out))
		}
		return out, nil
	case error:
		return nil, errors.Wrap(dec, errors.ErrorTypeCompression, "zstd decoder")
	}
	return nil, errors.New(errors.ErrorTypeInternal, "zstd decoder pool returned unexpected value")
}

func (zc *zstdCodec) Type() Type { return Zstd }
func (zc *zstdCodec) Level() int { return zc.level }
