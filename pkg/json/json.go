// Package json provides JSON encoding for strata tools on top of
// goccy/go-json, with pooled buffers and a streaming encoder for row output.
package json

import (
	"bytes"
	"io"

	gojson "github.com/goccy/go-json"

	"github.com/ajitpratap0/strata/pkg/pool"
)

// maxPooledBuffer is the largest buffer returned to the pool.
const maxPooledBuffer = 1 << 20

var buffers = pool.New(
	func() *bytes.Buffer { return bytes.NewBuffer(make([]byte, 0, 4096)) },
	(*bytes.Buffer).Reset,
)

// GetBuffer returns an empty pooled buffer.
func GetBuffer() *bytes.Buffer {
	return buffers.Get()
}

// PutBuffer returns buf to the pool. Buffers grown past 1MiB are dropped.
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledBuffer {
		return
	}
	buffers.Put(buf)
}

// Marshal is a drop-in replacement for encoding/json.Marshal.
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal is a drop-in replacement for encoding/json.Unmarshal.
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// MarshalIndent is a drop-in replacement for encoding/json.MarshalIndent.
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// Object is a JSON object that keeps its keys in insertion order.
type Object struct {
	keys   []string
	values []interface{}
}

// Set appends key with value.
func (o *Object) Set(key string, value interface{}) {
	o.keys = append(o.keys, key)
	o.values = append(o.values, value)
}

// Reset empties the object, keeping its storage.
func (o *Object) Reset() {
	o.keys = o.keys[:0]
	o.values = o.values[:0]
}

// Len returns the number of keys.
func (o *Object) Len() int { return len(o.keys) }

// MarshalJSON implements json.Marshaler.
func (o *Object) MarshalJSON() ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)
	buf.WriteByte('{')
	for i, key := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := gojson.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := gojson.Marshal(o.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return append([]byte(nil), buf.Bytes()...), nil
}

// StreamingEncoder writes a sequence of values either as a JSON array or as
// newline-delimited JSON.
type StreamingEncoder struct {
	writer      io.Writer
	encoder     *gojson.Encoder
	firstRecord bool
	isArray     bool
}

// NewStreamingEncoder creates a new streaming encoder
func NewStreamingEncoder(w io.Writer, isArray bool) *StreamingEncoder {
	enc := gojson.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &StreamingEncoder{
		writer:      w,
		encoder:     enc,
		firstRecord: true,
		isArray:     isArray,
	}
}

// Encode encodes a single value
func (se *StreamingEncoder) Encode(v interface{}) error {
	if se.isArray {
		sep := []byte{','}
		if se.firstRecord {
			sep = []byte{'['}
		}
		if _, err := se.writer.Write(sep); err != nil {
			return err
		}
		se.firstRecord = false
	}
	return se.encoder.Encode(v)
}

// Close finalizes the encoding. An array with no values is written as [].
func (se *StreamingEncoder) Close() error {
	if !se.isArray {
		return nil
	}
	closing := "]\n"
	if se.firstRecord {
		closing = "[]\n"
	}
	_, err := io.WriteString(se.writer, closing)
	return err
}
