package errors

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeFile, "open"))
}

func TestTypeOf(t *testing.T) {
	inner := New(ErrorTypeCorrupt, "bad magic")
	outer := Wrap(inner, ErrorTypeFile, "open failed")

	assert.Equal(t, ErrorTypeFile, TypeOf(outer))
	assert.Equal(t, ErrorTypeInternal, TypeOf(io.EOF))
	assert.True(t, IsType(outer, ErrorTypeCorrupt))
}

func TestFieldCollectsDetails(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)

	inner := New(ErrorTypeCorrupt, "column buffer too short").WithDetail("column", 2)
	outer := Wrap(inner, ErrorTypeFile, "read row group").WithDetail("row_group", 1)
	log.Error("read failed", Field(outer))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	obj, ok := fields["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "file", obj["type"])
	assert.Equal(t, "read row group", obj["message"])
	assert.EqualValues(t, 2, obj["column"])
	assert.EqualValues(t, 1, obj["row_group"])
}

func TestFieldPlainError(t *testing.T) {
	f := Field(io.EOF)
	assert.Equal(t, "error", f.Key)
	assert.Equal(t, zapcore.ErrorType, f.Type)
}
