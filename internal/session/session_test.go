package session

import (
	"bytes"
	"testing"

	"github.com/schoolmq/broker/internal/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_NextMsgIDWrapsPast0xFFFF(t *testing.T) {
	s := New("client-1", codec.NewWriter(&bytes.Buffer{}))

	// fast-forward to just below the wrap point
	for i := 0; i < 0xFFFE; i++ {
		s.NextMsgID()
	}

	last := s.NextMsgID()
	assert.Equal(t, uint16(0xFFFF), last)

	wrapped := s.NextMsgID()
	assert.Equal(t, uint16(1), wrapped, "packet id must wrap to 1, never 0")
}

func TestSession_NextMsgIDNeverZero(t *testing.T) {
	s := New("client-1", codec.NewWriter(&bytes.Buffer{}))
	for i := 0; i < 200000; i++ {
		assert.NotEqual(t, uint16(0), s.NextMsgID())
	}
}

func TestSession_PubrecParkAndTake(t *testing.T) {
	s := New("client-1", codec.NewWriter(&bytes.Buffer{}))

	s.ParkPubrec(42, "a/b", "payload", true)

	topic, payload, retain, ok := s.TakePubrec(42)
	require.True(t, ok)
	assert.Equal(t, "a/b", topic)
	assert.Equal(t, "payload", payload)
	assert.True(t, retain)

	_, _, _, ok = s.TakePubrec(42)
	assert.False(t, ok, "pubrec entry must be consumed exactly once")
}

func TestSession_Will(t *testing.T) {
	s := New("client-1", codec.NewWriter(&bytes.Buffer{}))
	assert.Nil(t, s.GetWill())

	will := &codec.Will{Topic: "status/client-1", Payload: "offline", Retain: true}
	s.SetWill(will)
	assert.Equal(t, will, s.GetWill())
}
