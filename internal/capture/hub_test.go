package capture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio_exporter/internal/core"
	"portfolio_exporter/pkg/logging"
)

func testLogger(t *testing.T) core.ILogger {
	t.Helper()
	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)
	return logger
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub(testLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)

	client := NewClient("test-1")
	hub.Register(client)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, hub.ClientCount())

	hub.Unregister(client)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(testLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)

	client := NewClient("test-1")
	hub.Register(client)
	time.Sleep(10 * time.Millisecond)

	msg := NewStatusMessage(core.StatusUpdate{Captured: 5})
	hub.Broadcast(msg)

	select {
	case received := <-client.SendChan():
		assert.Equal(t, TypeStatus, received.Type)
		assert.Equal(t, msg.Data, received.Data)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Client did not receive message")
	}
}

func TestHubSlowClientDropped(t *testing.T) {
	hub := NewHub(testLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)

	client := NewClient("slow")
	hub.Register(client)
	time.Sleep(10 * time.Millisecond)

	// Fill the client's buffer without draining, then push one more.
	for i := 0; i < 300; i++ {
		hub.Broadcast(NewTriggerDetailsMessage())
		time.Sleep(time.Millisecond / 10)
	}

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, time.Second, 10*time.Millisecond, "a client that never drains must be unregistered")
}

func TestHubShutdownClosesClients(t *testing.T) {
	hub := NewHub(testLogger(t))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	client := NewClient("test-1")
	hub.Register(client)
	time.Sleep(10 * time.Millisecond)

	cancel()
	<-done

	_, open := <-client.SendChan()
	assert.False(t, open, "send channel must be closed on shutdown")
}

func TestHubUnregisterAfterShutdown(t *testing.T) {
	hub := NewHub(testLogger(t))
	ctx, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	client := NewClient("test-1")
	hub.Register(client)
	time.Sleep(10 * time.Millisecond)

	cancel()
	<-stopped

	// Connection handlers unregister during teardown; with the hub loop
	// gone that must not block.
	unblocked := make(chan struct{})
	go func() {
		hub.Unregister(client)
		late := NewClient("test-2")
		hub.Register(late)
		close(unblocked)
	}()

	select {
	case <-unblocked:
	case <-time.After(time.Second):
		t.Fatal("register/unregister blocked after hub shutdown")
	}
	assert.Equal(t, 0, hub.ClientCount())
}
