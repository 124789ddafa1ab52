package network

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountingConn_TracksBytesAndActivity(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	counted := newCountingConn(server)
	before := counted.LastActivity()

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 5)
		n, err := counted.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, 5, n)

		n, err = counted.Write([]byte("world"))
		require.NoError(t, err)
		assert.Equal(t, 5, n)
	}()

	_, err := client.Write([]byte("hello"))
	require.NoError(t, err)

	reply := make([]byte, 5)
	_, err = client.Read(reply)
	require.NoError(t, err)

	<-done
	assert.EqualValues(t, 5, counted.BytesRead())
	assert.EqualValues(t, 5, counted.BytesWritten())
	assert.True(t, counted.LastActivity().After(before) || counted.LastActivity().Equal(before))
}
