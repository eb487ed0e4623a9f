package eif_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/dtn7/bmfbus/pkg/bmf"
	"github.com/dtn7/bmfbus/pkg/eif"
	"github.com/dtn7/bmfbus/pkg/eif/dummy_eif"
	"github.com/dtn7/bmfbus/pkg/pml"
)

type recorder struct {
	bmf [][]byte
	pml []*pml.Message
}

func (r *recorder) DispatchBMF(_ uint32, msg []byte) {
	r.bmf = append(r.bmf, msg)
}

func (r *recorder) DispatchPML(_ uint32, msg *pml.Message) {
	r.pml = append(r.pml, msg)
}

func bmfMessage(values ...uint64) []byte {
	buf := bmf.NewBuffer(0)
	for _, v := range values {
		buf.PutUnsigned(v)
	}
	buf.PutEnd()
	return buf.Bytes()
}

func TestUpdateRespectsMaxPerPoll(t *testing.T) {
	near, far := dummy_eif.NewPipePair("a", "b")
	iface := dummy_eif.NewInterface(eif.BMF, near, eif.WithMaxPerPoll(2))

	for i := uint64(0); i < 3; i++ {
		_, err := far.Write(bmfMessage(i, i+1))
		require.NoError(t, err)
	}

	rec := &recorder{}
	assert.True(t, iface.Update(rec))
	assert.Len(t, rec.bmf, 2)

	assert.True(t, iface.Update(rec))
	require.Len(t, rec.bmf, 3)
	assert.Equal(t, bmfMessage(2, 3), rec.bmf[2])
}

func TestUpdateReceiveAll(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		count := rapid.IntRange(1, 100).Draw(t, "count")
		near, far := dummy_eif.NewPipePair("a", "b")
		iface := dummy_eif.NewInterface(eif.BMF, near, eif.WithMaxPerPoll(1), eif.WithReceiveAll(true))

		for i := 0; i < count; i++ {
			if _, err := far.Write(bmfMessage(uint64(i))); err != nil {
				t.Fatal(err)
			}
		}

		rec := &recorder{}
		iface.Update(rec)
		if len(rec.bmf) != count {
			t.Fatalf("dispatched %d of %d messages", len(rec.bmf), count)
		}
	})
}

func TestUpdateDrainsOnEnd(t *testing.T) {
	near, far := dummy_eif.NewPipePair("a", "b")
	iface := dummy_eif.NewInterface(eif.BMF, near, eif.WithMaxPerPoll(1))

	for i := uint64(0); i < 4; i++ {
		_, err := far.Write(bmfMessage(i))
		require.NoError(t, err)
	}
	// half a message, discarded on end
	_, err := far.Write([]byte{0x85})
	require.NoError(t, err)
	require.NoError(t, far.Close())

	rec := &recorder{}
	assert.False(t, iface.Update(rec))
	assert.Len(t, rec.bmf, 4)
	assert.False(t, iface.Update(rec))
	assert.Len(t, rec.bmf, 4)
}

func TestBatchedTransmit(t *testing.T) {
	near, far := dummy_eif.NewPipePair("a", "b")
	iface := dummy_eif.NewInterface(eif.BMF, near, eif.WithInstantTransmit(false))

	msg := bmfMessage(7)
	require.NoError(t, iface.SendBMF(msg))
	require.NoError(t, iface.SendBMF(msg))
	assert.Equal(t, 2, iface.Pending())

	buf := make([]byte, 64)
	n, err := far.Poll(buf)
	require.NoError(t, err)
	assert.Zero(t, n)

	iface.Update(&recorder{})
	assert.Zero(t, iface.Pending())

	n, err = far.Poll(buf)
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{}, msg...), msg...), buf[:n])
}

func TestSendErrors(t *testing.T) {
	near, _ := dummy_eif.NewPipePair("a", "b")
	readOnly := dummy_eif.NewInterface(eif.BMF, near, eif.WithWrite(false))

	var notWritable *eif.NotWritableError
	assert.ErrorAs(t, readOnly.SendBMF(bmfMessage(1)), &notWritable)

	var mismatch *eif.EncodingMismatchError
	assert.ErrorAs(t, readOnly.SendPML(pml.NewMessage("Error")), &mismatch)
	assert.False(t, readOnly.IsPMLNotBMF())
}

func TestPMLRoundTrip(t *testing.T) {
	nearA, nearB := dummy_eif.NewPipePair("a", "b")
	sender := dummy_eif.NewInterface(eif.PML, nearA)
	receiver := dummy_eif.NewInterface(eif.PML, nearB)
	assert.True(t, sender.IsPMLNotBMF())

	msg := pml.NewMessage("Error")
	msg.VariableID = 3
	msg.Set("priority", false, "5")
	require.NoError(t, sender.SendPML(msg))

	rec := &recorder{}
	assert.True(t, receiver.Update(rec))
	require.Len(t, rec.pml, 1)
	assert.Equal(t, "Error", rec.pml[0].Type)
	assert.Equal(t, uint32(3), rec.pml[0].VariableID)
	value, ok := rec.pml[0].Get("priority", false)
	assert.True(t, ok)
	assert.Equal(t, "5", value)
}

func TestInterfaceInvariants(t *testing.T) {
	near, _ := dummy_eif.NewPipePair("a", "b")

	assert.Panics(t, func() { eif.NewInterface(eif.Dummy, eif.BMF, near, nil) })
	assert.Panics(t, func() { eif.NewInterface(eif.Dummy, eif.BMF, near, eif.NewParser(eif.PML)) })
	assert.Panics(t, func() { eif.NewParser(eif.NoEncoding) })

	iface := dummy_eif.NewInterface(eif.BMF, near)
	assert.Panics(t, func() { iface.Port() })
	iface.SetPort(4)
	assert.Equal(t, uint32(4), iface.Port())
	assert.Panics(t, func() { iface.SetPort(5) })
}

func TestEnumStrings(t *testing.T) {
	for _, connection := range eif.ConnectionTypes {
		parsed, err := eif.ConnectionTypeFromString(connection.String())
		require.NoError(t, err)
		assert.Equal(t, connection, parsed)
		assert.NoError(t, connection.CheckValid())
	}
	assert.Error(t, eif.ConnectionType(7).CheckValid())

	for _, encoding := range eif.Encodings {
		parsed, err := eif.EncodingFromString(encoding.String())
		require.NoError(t, err)
		assert.Equal(t, encoding, parsed)
	}
	wildcard, err := eif.EncodingFromString("any")
	require.NoError(t, err)
	assert.Equal(t, eif.NoEncoding, wildcard)
	_, err = eif.EncodingFromString("json")
	assert.Error(t, err)
}
