package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/conduit-ai/conduit/internal/event"
	"github.com/conduit-ai/conduit/internal/logging"
)

// SSEHeartbeatInterval is the interval for SSE heartbeat comments.
const SSEHeartbeatInterval = 30 * time.Second

// ssePayload is the wire shape of one SSE event.
type ssePayload struct {
	Type event.Type `json:"type"`
	Data any        `json:"data"`
}

// sseWriter wraps http.ResponseWriter for SSE.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &sseWriter{w: w, flusher: flusher, rc: http.NewResponseController(w)}, nil
}

func (s *sseWriter) writeEvent(data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(s.w, "event: message\ndata: %s\n\n", jsonData); err != nil {
		return err
	}

	if flushErr := s.rc.Flush(); flushErr != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *sseWriter) writeHeartbeat() {
	fmt.Fprintf(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// events streams bus events to the client. With ?chat_id= the stream is
// filtered to one chat's keys (message streams plus chat-wide follow-ups);
// without it every event is forwarded.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	chatID := r.URL.Query().Get("chat_id")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	if err := sse.writeEvent(ssePayload{Type: "server:connected", Data: map[string]any{}}); err != nil {
		return
	}

	// Small buffer for low latency; a slow client drops events rather than
	// stalling the publishing session.
	events := make(chan event.Event, 16)
	forward := func(e event.Event) {
		select {
		case events <- e:
		default:
			logging.Warn().
				Str("event_type", string(e.Type)).
				Msg("sse event dropped: channel full")
		}
	}

	var unsub func()
	if chatID == "" {
		unsub = s.bus.SubscribeAll(forward)
	} else {
		unsub = s.bus.SubscribeAll(func(e event.Event) {
			if eventBelongsToChat(e, chatID) {
				forward(e)
			}
		})
	}
	defer unsub()

	ticker := time.NewTicker(SSEHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-events:
			if err := sse.writeEvent(ssePayload{Type: e.Type, Data: e.Data}); err != nil {
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}

// eventBelongsToChat reports whether an event's payload targets chatID.
func eventBelongsToChat(e event.Event, chatID string) bool {
	switch data := e.Data.(type) {
	case event.MessageData:
		return data.ChatID == chatID
	case event.DeltaData:
		return data.ChatID == chatID
	case event.CompletionData:
		return data.ChatID == chatID
	case event.CancelledData:
		return data.ChatID == chatID
	case event.ModelSelectedData:
		return data.ChatID == chatID
	case event.TitleData:
		return data.ChatID == chatID
	case event.TagsData:
		return data.ChatID == chatID
	case event.ToolExecuteData:
		return data.ChatID == chatID
	case event.ToolStatusData:
		return data.ChatID == chatID
	}
	return false
}
