package server

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/conduit-ai/conduit/internal/session"
	"github.com/conduit-ai/conduit/internal/storage"
	"github.com/conduit-ai/conduit/internal/tool"
)

// chatMessage is one conversation turn in a completion request.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// completionRequest is the body of POST /api/chats/{chatID}/completions.
type completionRequest struct {
	MessageID string        `json:"message_id,omitempty"`
	Model     string        `json:"model,omitempty"`
	Messages  []chatMessage `json:"messages"`

	Stream *bool  `json:"stream,omitempty"`
	Policy string `json:"policy,omitempty"`

	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`

	GenerateTitle *bool `json:"generate_title,omitempty"`
	GenerateTags  *bool `json:"generate_tags,omitempty"`
}

func (s *Server) startCompletion(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	var req completionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "messages required")
		return
	}

	modelString := req.Model
	if modelString == "" {
		modelString = s.config.DefaultModel
	}

	prov, modelID, err := s.providers.Resolve(modelString)
	if err != nil {
		msg := err.Error()
		if hint := s.providers.Suggest(modelString); hint != "" {
			msg = fmt.Sprintf("%s (did you mean %q?)", msg, hint)
		}
		writeError(w, http.StatusBadRequest, ErrCodeProviderError, msg)
		return
	}

	messages, err := convertMessages(req.Messages)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	messageID := req.MessageID
	if messageID == "" {
		messageID = ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	}

	policy := s.config.Policy
	if req.Policy != "" {
		switch session.PersistencePolicy(req.Policy) {
		case session.PolicyRealtime, session.PolicyBatch:
			policy = session.PersistencePolicy(req.Policy)
		default:
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "unknown policy")
			return
		}
	}

	stream := true
	if req.Stream != nil {
		stream = *req.Stream
	}

	generateTitle := s.config.EnableTitleGeneration
	if req.GenerateTitle != nil {
		generateTitle = *req.GenerateTitle
	}
	generateTags := s.config.EnableTagGeneration
	if req.GenerateTags != nil {
		generateTags = *req.GenerateTags
	}

	// Follow-ups run against the configured task model when one resolves;
	// otherwise they reuse the completion's own model.
	taskProv, taskModelID := prov, modelID
	if s.config.TaskModel != "" {
		if p, m, err := s.providers.Resolve(s.config.TaskModel); err == nil {
			taskProv, taskModelID = p, m
		}
	}

	start := session.StartRequest{
		ChatID:        chatID,
		MessageID:     messageID,
		Provider:      prov,
		ModelID:       modelID,
		Messages:      messages,
		Stream:        stream,
		Policy:        policy,
		CodeEnabled:   s.config.CodeEnabled,
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		GenerateTitle: generateTitle,
		GenerateTags:  generateTags,
		TagSets:       s.config.TagSets,
		TaskProvider:  taskProv,
		TaskModelID:   taskModelID,
	}

	if err := s.supervisor.Start(start); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"chat_id":    chatID,
		"message_id": messageID,
		"model":      modelID,
	})
}

func (s *Server) stopCompletion(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	if !s.supervisor.Cancel(chatID) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "no running completion for chat")
		return
	}
	writeSuccess(w)
}

func (s *Server) getChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	doc, err := s.store.GetChat(r.Context(), chatID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "chat not found")
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) getMessage(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")

	doc, err := s.store.GetMessage(r.Context(), messageID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "message not found")
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"models": s.providers.AllModels(),
	})
}

// directToolPayload is the body of POST /api/tools/register.
type directToolPayload struct {
	Tools []tool.DirectSpec `json:"tools"`
}

func (s *Server) registerDirectTools(w http.ResponseWriter, r *http.Request) {
	var payload directToolPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}

	for _, spec := range payload.Tools {
		if spec.Name == "" {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "tool name required")
			return
		}
	}

	s.tools.RegisterDirect(payload.Tools)
	writeSuccess(w)
}

func (s *Server) unregisterDirectTools(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Names []string `json:"names"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}

	s.tools.UnregisterDirect(payload.Names)
	writeSuccess(w)
}

// toolResultPayload is the body of POST /api/tools/results: the client's
// answer to a tool:execute event.
type toolResultPayload struct {
	RequestID string `json:"request_id"`
	Content   string `json:"content,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) postToolResult(w http.ResponseWriter, r *http.Request) {
	var payload toolResultPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}
	if payload.RequestID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "request_id required")
		return
	}

	resolved := s.direct.Resolve(payload.RequestID, tool.DirectResponse{
		Content: payload.Content,
		Error:   payload.Error,
	})
	if !resolved {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "unknown or expired request id")
		return
	}
	writeSuccess(w)
}

func convertMessages(messages []chatMessage) ([]*schema.Message, error) {
	out := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "user":
			out = append(out, schema.UserMessage(m.Content))
		case "assistant":
			out = append(out, &schema.Message{Role: schema.Assistant, Content: m.Content})
		case "system":
			out = append(out, schema.SystemMessage(m.Content))
		default:
			return nil, errors.New("unknown message role: " + m.Role)
		}
	}
	return out, nil
}
