package network

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/schoolmq/broker/internal/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListener_ServeAcceptsAndDispatches(t *testing.T) {
	ln, err := Listen("127.0.0.1:0", nil)
	require.NoError(t, err)

	var accepted atomic.Int32
	handler := func(ctx context.Context, conn net.Conn) {
		accepted.Add(1)
		conn.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = ln.Serve(ctx, 0, handler)
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	_ = conn.Close()

	assert.Eventually(t, func() bool { return accepted.Load() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	wg.Wait()
}

func TestListener_ShutdownDrainsInFlightHandlers(t *testing.T) {
	ln, err := Listen("127.0.0.1:0", nil)
	require.NoError(t, err)

	release := make(chan struct{})
	started := make(chan struct{})
	handler := func(ctx context.Context, conn net.Conn) {
		close(started)
		<-release
		conn.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() { serveDone <- ln.Serve(ctx, 0, handler) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("handler never started")
	}

	cancel()

	select {
	case <-serveDone:
		t.Fatal("Serve returned before the in-flight handler finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	select {
	case err := <-serveDone:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after handler completed")
	}
}

type fakeConnServer struct {
	called atomic.Int32
}

func (f *fakeConnServer) ServeConnection(ctx context.Context, reader *codec.Reader, writer *codec.Writer) error {
	f.called.Add(1)
	_, err := reader.ReadPacket()
	return err
}

func TestConnectionHandler_ClosesSocketAfterServe(t *testing.T) {
	cs := &fakeConnServer{}
	h := ConnectionHandler(cs, nil)

	clientConn, serverConn := net.Pipe()
	done := make(chan struct{})
	go func() {
		h(context.Background(), serverConn)
		close(done)
	}()

	_ = clientConn.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not return after client closed")
	}
	assert.EqualValues(t, 1, cs.called.Load())

	// A pipe end closed locally reports io.ErrClosedPipe on Read.
	_, err := serverConn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}
