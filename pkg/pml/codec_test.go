package pml

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/dtn7/bmfbus/pkg/route"
)

func generateMessage(t *rapid.T, i int) *Message {
	msg := NewMessage(rapid.StringMatching(`[A-W][A-Za-z]{0,12}`).Draw(t, fmt.Sprintf("type %d", i)))
	msg.VariableID = rapid.Uint32().Draw(t, fmt.Sprintf("var %d", i))
	msg.Broadcast = rapid.Bool().Draw(t, fmt.Sprintf("broadcast %d", i))
	msg.Route = route.MustParse(rapid.StringMatching(`([0-9]{1,3}(\.[a-z]{1,4})?)?`).Draw(t, fmt.Sprintf("route %d", i)))

	names := rapid.SliceOfDistinct(rapid.StringMatching(`[a-w][a-zA-Z]{2,8}`), func(s string) string { return s }).Draw(t, fmt.Sprintf("names %d", i))
	for j, name := range names {
		if reserved(name) {
			continue
		}
		value := rapid.StringMatching(`[ -~]{0,20}`).Draw(t, fmt.Sprintf("value %d/%d", i, j))
		msg.Set(name, rapid.Bool().Draw(t, fmt.Sprintf("namespaced %d/%d", i, j)), value)
	}
	return msg
}

func TestMarshalRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numberOfMessages := rapid.IntRange(1, 5).Draw(t, "Number of messages")
		messages := make([]*Message, numberOfMessages)
		var stream []byte
		for i := range messages {
			messages[i] = generateMessage(t, i)
			data, err := Marshal(messages[i])
			if err != nil {
				t.Fatal(err)
			}
			stream = append(stream, data...)
		}

		decoder := NewDecoder()
		for len(stream) > 0 {
			n := rapid.IntRange(1, len(stream)).Draw(t, "chunk")
			decoder.Feed(stream[:n])
			stream = stream[n:]
		}

		for i, expected := range messages {
			msg, ok := decoder.Next()
			if !ok {
				t.Fatalf("message %d missing", i)
			}
			require.Equal(t, expected.Type, msg.Type)
			require.Equal(t, expected.VariableID, msg.VariableID)
			require.Equal(t, expected.Broadcast, msg.Broadcast)
			require.True(t, expected.Route.Equal(msg.Route), "route %v != %v", expected.Route, msg.Route)
			require.Equal(t, expected.Namespaced, msg.Namespaced)
			require.Equal(t, expected.Plain, msg.Plain)
		}
	})
}

func TestDecoderSkipsNoise(t *testing.T) {
	decoder := NewDecoder()
	decoder.Feed([]byte(`<?xml version="1.0"?>
<!-- a comment with <Fake/> inside -->
<Error var="4" priority="5" pml:unit="s" text="a &gt; b"></Error>
<Broken attr="unterminated/>`))

	msg, ok := decoder.Next()
	require.True(t, ok)
	assert.Equal(t, "Error", msg.Type)
	assert.Equal(t, uint32(4), msg.VariableID)
	assert.Equal(t, map[string]string{"priority": "5", "text": "a > b"}, msg.Plain)
	assert.Equal(t, map[string]string{"unit": "s"}, msg.Namespaced)

	_, ok = decoder.Next()
	assert.False(t, ok)
	assert.True(t, decoder.Partial())
}

func TestMarshalRejectsReservedNames(t *testing.T) {
	msg := NewMessage("Error")
	msg.Set("route", false, "1")
	_, err := Marshal(msg)
	assert.Error(t, err)

	msg = NewMessage("")
	_, err = Marshal(msg)
	assert.Error(t, err)
}

func TestConsumeAndLeftover(t *testing.T) {
	msg := NewMessage("Error")
	msg.Set("priority", false, "5")
	msg.Set("unit", true, "s")
	msg.Set("extra", false, "x")

	clone := msg.Clone()
	msg.Consume("priority", false)
	msg.Consume("unit", true)

	assert.Equal(t, []string{"extra"}, msg.Leftover())
	assert.Equal(t, []string{"extra", "pml:unit", "priority"}, clone.Leftover())
}
