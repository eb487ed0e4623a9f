package dummy_eif

import (
	"bytes"
	"io"
	"testing"

	"pgregory.net/rapid"
)

func TestPipeCrossesSides(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		near, far := NewPipePair("near", "far")
		data := rapid.SliceOfN(rapid.Byte(), 1, 512).Draw(t, "data")

		if _, err := far.Write(data); err != nil {
			t.Fatal(err)
		}

		buf := make([]byte, 1024)
		if n, err := far.Poll(buf); err != nil || n != 0 {
			t.Fatalf("writer polled its own data: %d, %v", n, err)
		}
		n, err := near.Poll(buf)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(buf[:n], data) {
			t.Fatalf("polled %x, expected %x", buf[:n], data)
		}
	})
}

func TestDrainReturnsPeerWrites(t *testing.T) {
	near, far := NewPipePair("near", "far")
	if _, err := near.Write([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if data := far.Drain(); !bytes.Equal(data, []byte{1, 2, 3}) {
		t.Fatalf("drained %x", data)
	}
	if data := far.Drain(); len(data) != 0 {
		t.Fatalf("second drain returned %x", data)
	}
}

func TestPollEndsAfterClose(t *testing.T) {
	near, far := NewPipePair("near", "far")
	if err := far.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := near.Poll(make([]byte, 8)); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
	if _, err := near.Write([]byte{1}); err == nil {
		t.Fatal("write to closed pipe succeeded")
	}
}
