package file_eif

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
	"pgregory.net/rapid"

	"github.com/dtn7/bmfbus/pkg/bmf"
	"github.com/dtn7/bmfbus/pkg/eif"
	"github.com/dtn7/bmfbus/pkg/pml"
)

type collector struct {
	messages [][]byte
}

func (c *collector) DispatchBMF(_ uint32, msg []byte) {
	c.messages = append(c.messages, msg)
}

func (c *collector) DispatchPML(_ uint32, _ *pml.Message) {}

func encode(values ...uint64) []byte {
	buf := bmf.NewMessageBuffer()
	for _, v := range values {
		buf.PutUnsigned(v)
	}
	buf.PutEnd()
	return append([]byte(nil), buf.Bytes()...)
}

func TestReadFileToEnd(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		dir, err := os.MkdirTemp("", "bmfbus-file-eif")
		if err != nil {
			t.Fatal(err)
		}
		defer os.RemoveAll(dir)

		n := rapid.IntRange(0, 40).Draw(t, "messages")
		var content []byte
		for i := 0; i < n; i++ {
			content = append(content, encode(uint64(i), rapid.Uint64().Draw(t, "value"))...)
		}
		path := filepath.Join(dir, "input.bmf")
		if err := os.WriteFile(path, content, 0644); err != nil {
			t.Fatal(err)
		}

		interfaces, err := NewHandler(eif.BMF).Open(eif.Spec{Address: path, Read: true})
		if err != nil {
			t.Fatal(err)
		}
		iface := interfaces[0]
		defer iface.Close()

		received := &collector{}
		deadline := time.Now().Add(5 * time.Second)
		for iface.Update(received) && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}

		if !iface.Ended() {
			t.Fatal("Interface did not end at the end of its file")
		}
		if len(received.messages) != n {
			t.Fatalf("Received %d of %d messages", len(received.messages), n)
		}
	})
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "output.bmf")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0644))

	interfaces, err := NewHandler(eif.BMF).Open(eif.Spec{Address: path, Write: true, Instant: true})
	require.NoError(t, err)
	iface := interfaces[0]

	require.NoError(t, iface.SendBMF(encode(1)))
	require.NoError(t, iface.SendBMF(encode(2)))
	require.NoError(t, iface.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, append(encode(1), encode(2)...), data)
}

func TestLoggingFileAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.bmf")
	require.NoError(t, os.WriteFile(path, encode(7), 0644))

	interfaces, err := NewHandler(eif.BMF).Open(eif.Spec{Address: path, Write: true, Logging: true})
	require.NoError(t, err)
	iface := interfaces[0]
	assert.True(t, iface.IsLogging())

	// batched until the next update
	require.NoError(t, iface.SendBMF(encode(8)))
	assert.Equal(t, 1, iface.Pending())
	assert.True(t, iface.Update(&collector{}))
	require.NoError(t, iface.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, append(encode(7), encode(8)...), data)
}

func TestFIFOPair(t *testing.T) {
	dir := t.TempDir()
	in, out := filepath.Join(dir, "in"), filepath.Join(dir, "out")
	require.NoError(t, unix.Mkfifo(in, 0600))
	require.NoError(t, unix.Mkfifo(out, 0600))

	interfaces, err := NewHandler(eif.BMF).Open(eif.Spec{Address: in, Peer: out, Read: true, Write: true, Instant: true})
	require.NoError(t, err)
	iface := interfaces[0]
	defer iface.Close()
	assert.Equal(t, "file://"+in+","+out, iface.Address())

	writer, err := os.OpenFile(in, os.O_RDWR, 0)
	require.NoError(t, err)
	defer writer.Close()
	reader, err := os.OpenFile(out, os.O_RDWR, 0)
	require.NoError(t, err)
	defer reader.Close()

	_, err = writer.Write(encode(3, 4))
	require.NoError(t, err)

	received := &collector{}
	deadline := time.Now().Add(5 * time.Second)
	for len(received.messages) == 0 && time.Now().Before(deadline) {
		require.True(t, iface.Update(received))
		time.Sleep(time.Millisecond)
	}
	require.Len(t, received.messages, 1)
	assert.Equal(t, encode(3, 4), received.messages[0])

	require.NoError(t, iface.SendBMF(encode(5)))
	buf := make([]byte, 16)
	n, err := reader.Read(buf)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(encode(5), buf[:n]))
}

func TestOpenNeitherReadNorWrite(t *testing.T) {
	_, err := NewHandler(eif.PML).Open(eif.Spec{Address: filepath.Join(t.TempDir(), "x")})
	assert.Error(t, err)
}
