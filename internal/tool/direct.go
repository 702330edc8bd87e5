package tool

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/conduit-ai/conduit/internal/event"
)

// ErrDirectTimeout is returned when the client never posts a result for a
// forwarded tool call.
var ErrDirectTimeout = errors.New("direct tool execution timed out")

// DirectResponse is the result a client posts back for a forwarded call.
type DirectResponse struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

type pendingCall struct {
	result chan DirectResponse
}

// Direct forwards tool calls to the connected client over the realtime
// channel and matches posted results back to waiting sessions by request
// id.
type Direct struct {
	bus     *event.Bus
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]*pendingCall
}

// NewDirect creates a direct-tool dispatcher. timeout bounds how long a
// session waits for the client's result.
func NewDirect(bus *event.Bus, timeout time.Duration) *Direct {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Direct{
		bus:     bus,
		timeout: timeout,
		pending: make(map[string]*pendingCall),
	}
}

// Execute publishes a tool:execute event for the client and blocks until
// the result is posted, the timeout fires, or ctx is cancelled. A client
// error is returned as data in the response, not as an error.
func (d *Direct) Execute(ctx context.Context, toolCtx *Context, toolName string, args map[string]any) (DirectResponse, error) {
	requestID := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()

	call := &pendingCall{result: make(chan DirectResponse, 1)}
	d.mu.Lock()
	d.pending[requestID] = call
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.pending, requestID)
		d.mu.Unlock()
	}()

	d.bus.Publish(event.Key(toolCtx.ChatID, toolCtx.MessageID), event.Event{
		Type: event.ToolExecute,
		Data: event.ToolExecuteData{
			RequestID: requestID,
			ChatID:    toolCtx.ChatID,
			MessageID: toolCtx.MessageID,
			CallID:    toolCtx.CallID,
			Tool:      toolName,
			Arguments: args,
		},
	})

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	select {
	case resp := <-call.result:
		return resp, nil
	case <-timer.C:
		return DirectResponse{}, ErrDirectTimeout
	case <-ctx.Done():
		return DirectResponse{}, ctx.Err()
	}
}

// Resolve completes a pending call with the client's result. It returns
// false when the request id is unknown or already resolved.
func (d *Direct) Resolve(requestID string, resp DirectResponse) bool {
	d.mu.Lock()
	call, ok := d.pending[requestID]
	if ok {
		delete(d.pending, requestID)
	}
	d.mu.Unlock()

	if !ok {
		return false
	}

	select {
	case call.result <- resp:
		return true
	default:
		return false
	}
}

// PendingCount reports how many calls are awaiting client results.
func (d *Direct) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
