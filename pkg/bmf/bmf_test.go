package bmf

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func noNulString() *rapid.Generator[string] {
	return rapid.String().Filter(func(s string) bool {
		return !strings.Contains(s, "\x00")
	})
}

func TestUnsignedRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.Uint64().Draw(t, "n")

		buf := NewBuffer(1)
		buf.PutUnsigned(n)

		encoded := buf.Bytes()
		if idx := bytes.IndexByte(encoded, EndOfMessage); idx >= 0 && idx != len(encoded)-1 {
			t.Fatalf("embedded end-of-message marker at %d in %x", idx, encoded)
		}
		if encoded[len(encoded)-1]&continuationBit != 0 {
			t.Fatalf("run %x not terminated", encoded)
		}
		if Length(encoded) != len(encoded) {
			t.Fatalf("length %d, run has %d bytes", Length(encoded), len(encoded))
		}

		decoded, err := NewCursor(encoded).Unsigned()
		if err != nil {
			t.Fatal(err)
		}
		if decoded != n {
			t.Fatalf("decoded %d, expected %d", decoded, n)
		}
	})
}

func TestUnsigned32NeverEncodesMarkers(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := uint64(rapid.Uint32().Draw(t, "n"))

		buf := NewBuffer(DefaultSegmentSize)
		require.True(t, buf.TryPutUnsigned(n))

		encoded := buf.Bytes()
		if IsFinished(encoded) || IsEmpty(encoded) {
			t.Fatalf("value %d encodes as a marker: %x", n, encoded)
		}
		if bytes.IndexByte(encoded[:len(encoded)-1], EndOfMessage) >= 0 {
			t.Fatalf("embedded zero byte in %x", encoded)
		}
	})
}

func TestValueRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		signed := rapid.Int64().Draw(t, "signed")
		float := rapid.Float64().Draw(t, "float")
		boolean := rapid.Bool().Draw(t, "boolean")
		text := noNulString().Draw(t, "text")

		buf := NewBuffer(2)
		for !buf.TryPutSigned(signed) {
			buf.Grow()
		}
		for !buf.TryPutFloat(float) {
			buf.Grow()
		}
		for !buf.TryPutBoolean(boolean) {
			buf.Grow()
		}
		for !buf.TryPutEmpty() {
			buf.Grow()
		}
		for !buf.TryPutString(text) {
			buf.Grow()
		}
		buf.PutEnd()

		cur := NewCursor(buf.Bytes())

		s, err := cur.Signed()
		require.NoError(t, err)
		require.Equal(t, signed, s)

		f, err := cur.Float()
		require.NoError(t, err)
		require.Equal(t, math.Float64bits(float), math.Float64bits(f))

		b, err := cur.Boolean()
		require.NoError(t, err)
		require.Equal(t, boolean, b)

		require.True(t, cur.IsEmpty())
		require.False(t, cur.HasAttribute())
		require.NoError(t, cur.Empty())

		str, err := cur.Text()
		require.NoError(t, err)
		require.Equal(t, text, str)

		require.True(t, cur.IsFinished())
	})
}

func TestFailedWriteLeavesBufferUntouched(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := noNulString().Draw(t, "text")
		size := rapid.IntRange(0, stringLen(text)-1).Draw(t, "size")

		buf := NewBuffer(size)
		if buf.TryPutString(text) {
			t.Fatalf("string of run length %d fit into %d bytes", stringLen(text), size)
		}
		if buf.Len() != 0 {
			t.Fatalf("partial write of %d bytes", buf.Len())
		}
	})
}

func TestGrowKeepsCursor(t *testing.T) {
	buf := NewBuffer(1)
	require.True(t, buf.TryPutEmpty())
	require.False(t, buf.TryPutUnsigned(300))

	buf.Grow()
	require.True(t, buf.TryPutUnsigned(300))
	require.Equal(t, 1+unsignedLen(300), buf.Len())
	require.Equal(t, Empty, buf.Bytes()[0])
}

func TestEmbeddedNul(t *testing.T) {
	buf := NewMessageBuffer()
	assert.ErrorIs(t, buf.PutString("a\x00b"), ErrEmbeddedNul)
	assert.Equal(t, 0, buf.Len())
	assert.Panics(t, func() { buf.TryPutString("\x00") })
}

func TestCanonicalEmpty(t *testing.T) {
	buf := NewBuffer(EmptySegmentSize)
	require.True(t, buf.TryPutEmpty())
	require.True(t, buf.TryPutEnd())

	assert.Equal(t, []byte{Empty, EndOfMessage}, buf.Bytes())
	assert.True(t, IsCanonicalEmpty(buf.Bytes()))
	assert.True(t, IsEmpty(buf.Bytes()))
	assert.True(t, IsEmpty(nil))
}

func TestEmptyBeforeLongRun(t *testing.T) {
	buf := NewBuffer(1)
	buf.PutEmpty()
	buf.PutUnsigned(1 << 20)
	buf.PutEnd()

	data := buf.Bytes()
	require.NotZero(t, data[1]&continuationBit)
	assert.True(t, IsEmpty(data))
	assert.False(t, IsCanonicalEmpty(data))
	assert.Equal(t, 1, Length(data))
	assert.False(t, IsEmpty(Skip(data)))
}

func TestNonEmptySegmentsAreNotEmpty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		buf := NewBuffer(1)
		if rapid.Bool().Draw(t, "string") {
			if err := buf.PutString(noNulString().Draw(t, "text")); err != nil {
				t.Fatal(err)
			}
		} else {
			buf.PutUnsigned(rapid.Uint64().Draw(t, "n"))
		}
		buf.PutEnd()

		if IsEmpty(buf.Bytes()) || IsCanonicalEmpty(buf.Bytes()) {
			t.Fatalf("segment %x reported empty", buf.Bytes())
		}
		if IsFinished(buf.Bytes()) {
			t.Fatalf("segment %x reported finished", buf.Bytes())
		}
	})
}

func TestEndOfMessage(t *testing.T) {
	assert.True(t, IsFinished(nil))
	assert.True(t, IsFinished([]byte{EndOfMessage}))
	assert.False(t, IsFinished([]byte{Empty}))
	assert.Equal(t, 1, Length(nil))
	assert.Equal(t, 1, Length([]byte{EndOfMessage}))

	end := []byte{EndOfMessage, 0x85, 0x03}
	assert.Equal(t, end, Skip(end))
}

func TestSkipStopsAtEnd(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		values := rapid.SliceOf(rapid.Uint64()).Draw(t, "values")

		buf := NewMessageBuffer()
		for _, v := range values {
			buf.PutUnsigned(v)
		}
		buf.PutEnd()

		seg := buf.Bytes()
		for i := 0; i < len(values); i++ {
			if IsFinished(seg) {
				t.Fatalf("finished after %d of %d segments", i, len(values))
			}
			seg = Skip(seg)
		}
		if !IsFinished(seg) || len(seg) != 1 {
			t.Fatalf("expected only the end marker, got %x", seg)
		}
		if again := Skip(seg); len(again) != 1 {
			t.Fatal("Skip advanced past the end marker")
		}
	})
}

func TestStrictDecoding(t *testing.T) {
	cur := NewCursor([]byte{EndOfMessage})
	_, err := cur.Unsigned()
	assert.ErrorIs(t, err, ErrMissingSegment)
	assert.Equal(t, 0, cur.Offset())

	cur = NewCursor([]byte{Empty, EndOfMessage})
	_, err = cur.Text()
	assert.ErrorIs(t, err, ErrEmptySegment)
	assert.Equal(t, 0, cur.Offset())

	cur = NewCursor([]byte{0x85, 0x86})
	_, err = cur.Unsigned()
	assert.ErrorIs(t, err, ErrTruncated)

	cur = NewCursor([]byte{0x07, EndOfMessage})
	_, err = cur.Boolean()
	var notBool *NotBooleanError
	assert.ErrorAs(t, err, &notBool)
	assert.Equal(t, 0, cur.Offset())

	overlong := bytes.Repeat([]byte{0xff}, maxUnsignedRun)
	overlong = append(overlong, 0x01)
	_, err = NewCursor(overlong).Unsigned()
	assert.ErrorIs(t, err, ErrOverflow)
}
