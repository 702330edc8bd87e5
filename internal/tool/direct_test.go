package tool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-ai/conduit/internal/event"
)

func TestDirectExecuteRoundTrip(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()

	d := NewDirect(bus, time.Second)

	// The client-side listener resolves the call as soon as it sees the
	// execute event.
	unsub := bus.SubscribeAll(func(e event.Event) {
		if e.Type != event.ToolExecute {
			return
		}
		data := e.Data.(event.ToolExecuteData)
		assert.Equal(t, "browser_click", data.Tool)
		go d.Resolve(data.RequestID, DirectResponse{Content: "clicked"})
	})
	defer unsub()

	toolCtx := &Context{ChatID: "c1", MessageID: "m1", CallID: "call_1"}
	resp, err := d.Execute(context.Background(), toolCtx, "browser_click", map[string]any{"selector": "#go"})
	require.NoError(t, err)
	assert.Equal(t, "clicked", resp.Content)
	assert.Zero(t, d.PendingCount())
}

func TestDirectExecuteErrorIsData(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()

	d := NewDirect(bus, time.Second)

	unsub := bus.SubscribeAll(func(e event.Event) {
		if data, ok := e.Data.(event.ToolExecuteData); ok {
			go d.Resolve(data.RequestID, DirectResponse{Error: "element not found"})
		}
	})
	defer unsub()

	resp, err := d.Execute(context.Background(), &Context{ChatID: "c", MessageID: "m"}, "browser_click", nil)
	require.NoError(t, err)
	assert.Equal(t, "element not found", resp.Error)
}

func TestDirectExecuteTimeout(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()

	d := NewDirect(bus, 20*time.Millisecond)

	_, err := d.Execute(context.Background(), &Context{ChatID: "c", MessageID: "m"}, "slow", nil)
	assert.ErrorIs(t, err, ErrDirectTimeout)
	assert.Zero(t, d.PendingCount())
}

func TestDirectExecuteContextCancelled(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()

	d := NewDirect(bus, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := d.Execute(ctx, &Context{ChatID: "c", MessageID: "m"}, "slow", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDirectResolveUnknownRequest(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()

	d := NewDirect(bus, time.Second)
	assert.False(t, d.Resolve("nope", DirectResponse{Content: "x"}))
}
