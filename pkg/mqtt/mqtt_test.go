package mqtt

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/womat/debug"
)

func init() {
	debug.SetDebug(io.Discard, 0)
}

func TestConnectWithoutBroker(t *testing.T) {
	m := New()
	require.NoError(t, m.Connect("", ""))
	assert.False(t, m.Connected())
	require.NoError(t, m.Disconnect())
}

func TestPublishNeverBlocks(t *testing.T) {
	m := New()
	for i := 0; i < cap(m.C)+10; i++ {
		m.Publish(Message{Topic: "dypmon/distance", Payload: []byte("{}")})
	}
	assert.Len(t, m.C, cap(m.C))

	require.NoError(t, m.Disconnect())
	m.Publish(Message{Topic: "dypmon/distance"})
}

func TestServiceStopsOnDisconnect(t *testing.T) {
	m := New()
	done := make(chan struct{})
	go func() {
		m.Service()
		close(done)
	}()

	// without broker, messages are consumed and ignored
	m.Publish(Message{Topic: "dypmon/distance", Payload: []byte("{}")})
	assert.Eventually(t, func() bool { return len(m.C) == 0 }, time.Second, time.Millisecond)

	require.NoError(t, m.Disconnect())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("service did not stop")
	}
}
