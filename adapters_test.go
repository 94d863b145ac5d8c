package serial

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodedSample(t *testing.T) (*Engine, []byte) {
	t.Helper()
	e, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	buf, err := e.Serialize(wireRecord{ID: 42, Name: "abc"})
	require.NoError(t, err)
	return e, buf
}

func TestBase64Adapter(t *testing.T) {
	e, buf := encodedSample(t)

	text := EncodeToString(buf)
	back, err := DecodeString(text)
	require.NoError(t, err)
	assert.Equal(t, buf, back)

	out, err := Decode[wireRecord](e, back)
	require.NoError(t, err)
	assert.Equal(t, wireRecord{ID: 42, Name: "abc"}, out)

	t.Run("EmptyString", func(t *testing.T) {
		_, err := DecodeString("")
		assert.ErrorIs(t, err, ErrArgument)
	})
	t.Run("InvalidText", func(t *testing.T) {
		_, err := DecodeString("not base64!!!")
		assert.ErrorIs(t, err, ErrArgument)
	})
}

func TestStreamAdapter(t *testing.T) {
	e, buf := encodedSample(t)

	var stream bytes.Buffer
	n, err := WriteBuffer(&stream, buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)

	back, err := ReadBuffer(&stream, 0)
	require.NoError(t, err)
	assert.Equal(t, buf, back)

	out, err := Decode[wireRecord](e, back)
	require.NoError(t, err)
	assert.Equal(t, wireRecord{ID: 42, Name: "abc"}, out)

	t.Run("RejectsMalformedBeforeWriting", func(t *testing.T) {
		var w bytes.Buffer
		_, err := WriteBuffer(&w, []byte{0xFF, 0x01})
		require.Error(t, err)
		assert.Zero(t, w.Len())
	})

	t.Run("TruncatedHeader", func(t *testing.T) {
		_, err := ReadBuffer(bytes.NewReader(buf[:4]), 0)
		assert.ErrorIs(t, err, ErrTruncatedBuffer)
	})

	t.Run("TruncatedPayload", func(t *testing.T) {
		_, err := ReadBuffer(bytes.NewReader(buf[:len(buf)-2]), 0)
		assert.ErrorIs(t, err, ErrTruncatedBuffer)
	})

	t.Run("DeclaredLengthOverCap", func(t *testing.T) {
		huge := append([]byte(nil), buf...)
		binary.LittleEndian.PutUint32(huge[5:9], 1<<30)
		_, err := ReadBuffer(bytes.NewReader(huge), 1024)
		assert.ErrorIs(t, err, ErrBufferLimit)
	})

	t.Run("UnknownVersion", func(t *testing.T) {
		bad := append([]byte(nil), buf...)
		bad[0] = 9
		_, err := ReadBuffer(bytes.NewReader(bad), 0)
		assert.ErrorIs(t, err, ErrCorruptBuffer)
	})
}

func TestCompressionAdapter(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	defer e.Close()

	in := userV2{ID: 1, Name: "compress me", Tags: make([]string, 64)}
	for i := range in.Tags {
		in.Tags[i] = "repeated-tag-payload"
	}
	buf, err := e.Serialize(in)
	require.NoError(t, err)

	packed := Compress(buf)
	assert.Less(t, len(packed), len(buf), "repetitive payload should shrink")

	back, err := Decompress(packed, 0)
	require.NoError(t, err)
	assert.Equal(t, buf, back)

	out, err := Decode[userV2](e, back)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	t.Run("EmptyInput", func(t *testing.T) {
		_, err := Decompress(nil, 0)
		assert.ErrorIs(t, err, ErrArgument)
	})
	t.Run("GarbageInput", func(t *testing.T) {
		_, err := Decompress([]byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01}, 0)
		require.Error(t, err)
	})
	t.Run("DecodedSizeOverCap", func(t *testing.T) {
		_, err := Decompress(packed, 64)
		assert.ErrorIs(t, err, ErrBufferLimit)
	})
}
