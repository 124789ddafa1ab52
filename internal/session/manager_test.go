package session

import (
	"bytes"
	"context"
	"testing"

	"github.com/schoolmq/broker/internal/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWillPublisher struct {
	published []string
}

func (f *fakeWillPublisher) PublishWill(_ context.Context, clientID string, will *codec.Will) error {
	f.published = append(f.published, clientID+":"+will.Topic)
	return nil
}

type fakeTakeoverObserver struct {
	evicted []string
}

func (f *fakeTakeoverObserver) OnTakeover(clientID string) {
	f.evicted = append(f.evicted, clientID)
}

func TestManager_CreateSession(t *testing.T) {
	m := NewManager(nil, nil)
	s := m.CreateSession("client-1", codec.NewWriter(&bytes.Buffer{}))
	require.NotNil(t, s)
	assert.Equal(t, 1, m.Count())

	got, ok := m.Get("client-1")
	assert.True(t, ok)
	assert.Same(t, s, got)
}

func TestManager_SecondConnectTakesOverSession(t *testing.T) {
	observer := &fakeTakeoverObserver{}
	m := NewManager(nil, observer)

	first := m.CreateSession("client-1", codec.NewWriter(&bytes.Buffer{}))
	second := m.CreateSession("client-1", codec.NewWriter(&bytes.Buffer{}))

	assert.Equal(t, []string{"client-1"}, observer.evicted)
	assert.Equal(t, 1, m.Count())

	current, ok := m.Get("client-1")
	require.True(t, ok)
	assert.Same(t, second, current)
	assert.NotSame(t, first, current)
}

func TestManager_TerminateAbruptFiresWill(t *testing.T) {
	publisher := &fakeWillPublisher{}
	m := NewManager(publisher, nil)

	s := m.CreateSession("client-1", codec.NewWriter(&bytes.Buffer{}))
	s.SetWill(&codec.Will{Topic: "status/client-1", Payload: "offline"})

	m.Terminate(context.Background(), "client-1", true)

	assert.Equal(t, []string{"client-1:status/client-1"}, publisher.published)
	_, ok := m.Get("client-1")
	assert.False(t, ok)
}

func TestManager_TerminateCleanDoesNotFireWill(t *testing.T) {
	publisher := &fakeWillPublisher{}
	m := NewManager(publisher, nil)

	s := m.CreateSession("client-1", codec.NewWriter(&bytes.Buffer{}))
	s.SetWill(&codec.Will{Topic: "status/client-1", Payload: "offline"})

	m.Terminate(context.Background(), "client-1", false)

	assert.Empty(t, publisher.published)
}
