package session

import (
	"context"
	"errors"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/conduit-ai/conduit/internal/codeexec"
	"github.com/conduit-ai/conduit/internal/event"
	"github.com/conduit-ai/conduit/internal/logging"
	"github.com/conduit-ai/conduit/internal/message"
	"github.com/conduit-ai/conduit/internal/provider"
	"github.com/conduit-ai/conduit/internal/storage"
	"github.com/conduit-ai/conduit/internal/tool"
)

// Supervisor owns the running sessions, keyed by chat id. At most one
// session runs per chat; starting a new one cancels its predecessor.
type Supervisor struct {
	store    *storage.Store
	bus      *event.Bus
	tools    *tool.Registry
	direct   *tool.Direct
	executor codeexec.Executor
	images   *codeexec.ImageCache

	mu         sync.Mutex
	active     map[string]*running
	classifier *message.Classifier
}

type running struct {
	messageID string
	cancel    context.CancelFunc
	done      chan struct{}
}

// SupervisorOptions wires the shared dependencies every session uses.
type SupervisorOptions struct {
	Store      *storage.Store
	Bus        *event.Bus
	Tools      *tool.Registry
	Direct     *tool.Direct
	Executor   codeexec.Executor
	Images     *codeexec.ImageCache
	Classifier *message.Classifier
}

// NewSupervisor creates a supervisor.
func NewSupervisor(opts SupervisorOptions) *Supervisor {
	return &Supervisor{
		store:      opts.Store,
		bus:        opts.Bus,
		tools:      opts.Tools,
		direct:     opts.Direct,
		executor:   opts.Executor,
		images:     opts.Images,
		classifier: opts.Classifier,
		active:     make(map[string]*running),
	}
}

// StartRequest describes one completion to run.
type StartRequest struct {
	ChatID    string
	MessageID string

	Provider provider.Provider
	ModelID  string
	Messages []*schema.Message

	Stream      bool
	Policy      PersistencePolicy
	CodeEnabled bool
	Filters     []Filter

	MaxTokens   int
	Temperature float64

	// GenerateTitle and GenerateTags trigger detached follow-up
	// generations once the session completes successfully.
	GenerateTitle bool
	GenerateTags  bool
	TagSets       []string

	// TaskProvider and TaskModelID select the model follow-ups run
	// against. Unset means the session's own provider and model.
	TaskProvider provider.Provider
	TaskModelID  string
}

// SetClassifier swaps the classifier used by sessions started after the
// call. Running sessions keep the classifier they started with. Used for
// tag-set hot reload.
func (sv *Supervisor) SetClassifier(c *message.Classifier) {
	sv.mu.Lock()
	sv.classifier = c
	sv.mu.Unlock()
}

func (sv *Supervisor) currentClassifier() *message.Classifier {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.classifier
}

// ErrInvalidRequest reports a start request missing required fields.
var ErrInvalidRequest = errors.New("invalid completion request")

// Start validates the request, replaces any session already running for the
// chat, and returns once the new session's goroutine is registered. The
// completion itself runs detached; progress is observable on the bus.
func (sv *Supervisor) Start(req StartRequest) error {
	if req.ChatID == "" || req.MessageID == "" || req.Provider == nil || len(req.Messages) == 0 {
		return ErrInvalidRequest
	}

	sv.Cancel(req.ChatID)

	ctx, cancel := context.WithCancel(context.Background())
	r := &running{
		messageID: req.MessageID,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	sv.mu.Lock()
	sv.active[req.ChatID] = r
	sv.mu.Unlock()

	go func() {
		defer func() {
			sv.mu.Lock()
			if current, ok := sv.active[req.ChatID]; ok && current == r {
				delete(sv.active, req.ChatID)
			}
			sv.mu.Unlock()
			close(r.done)
		}()

		if req.Stream {
			sv.runStreaming(ctx, req)
		} else {
			sv.runBlocking(ctx, req)
		}
	}()

	return nil
}

func (sv *Supervisor) runStreaming(ctx context.Context, req StartRequest) {
	sess := New(Options{
		ChatID:      req.ChatID,
		MessageID:   req.MessageID,
		Provider:    req.Provider,
		ModelID:     req.ModelID,
		Messages:    req.Messages,
		Tools:       sv.tools,
		Direct:      sv.direct,
		Executor:    sv.executor,
		Images:      sv.images,
		Store:       sv.store,
		Bus:         sv.bus,
		Classifier:  sv.currentClassifier(),
		Policy:      req.Policy,
		Filters:     req.Filters,
		CodeEnabled: req.CodeEnabled,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})

	if err := sess.Run(ctx); err != nil {
		logging.Error().Err(err).
			Str("chat_id", req.ChatID).
			Str("message_id", req.MessageID).
			Msg("session failed")
		return
	}

	if ctx.Err() == nil {
		sv.runFollowUps(req)
	}
}

// runBlocking handles the non-streaming path: a single generate call,
// one classification pass over the whole response, and one terminal write.
func (sv *Supervisor) runBlocking(ctx context.Context, req StartRequest) {
	log := logging.With().
		Str("chat_id", req.ChatID).
		Str("message_id", req.MessageID).
		Logger()

	var infos []provider.ToolInfo
	if sv.tools != nil {
		infos = sv.tools.ToolInfos()
	}

	msg, err := req.Provider.Generate(ctx, &provider.CompletionRequest{
		Model:       req.ModelID,
		Messages:    req.Messages,
		Tools:       provider.ConvertTools(infos),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		if ctx.Err() != nil {
			sv.publishCancelled(req, "")
			return
		}
		sv.bus.Publish(event.Key(req.ChatID, req.MessageID), event.Event{
			Type: event.ChatError,
			Data: event.CompletionData{
				ChatID:    req.ChatID,
				MessageID: req.MessageID,
				Error:     err.Error(),
			},
		})
		return
	}

	classifier := sv.currentClassifier()
	if classifier == nil {
		classifier = message.NewClassifier(nil)
	}

	blocks := message.AppendText([]message.Block{message.NewTextBlock("")}, msg.Content)
	blocks = classifier.Classify(blocks)

	var usage *message.Usage
	var finishReason string
	if msg.ResponseMeta != nil {
		finishReason = msg.ResponseMeta.FinishReason
		if msg.ResponseMeta.Usage != nil {
			usage = &message.Usage{
				PromptTokens:     msg.ResponseMeta.Usage.PromptTokens,
				CompletionTokens: msg.ResponseMeta.Usage.CompletionTokens,
				TotalTokens:      msg.ResponseMeta.Usage.TotalTokens,
			}
		}
	}

	content := message.Serialize(blocks)
	raw, _ := message.MarshalBlocks(blocks)

	fields := map[string]any{
		"role":    "assistant",
		"chat_id": req.ChatID,
		"model":   req.ModelID,
		"content": content,
		"blocks":  string(raw),
		"done":    true,
	}
	if usage != nil {
		fields["usage"] = map[string]any{
			"prompt_tokens":     usage.PromptTokens,
			"completion_tokens": usage.CompletionTokens,
			"total_tokens":      usage.TotalTokens,
		}
	}

	writeCtx := context.Background()
	if err := sv.store.UpsertMessageFields(writeCtx, req.MessageID, fields); err != nil {
		log.Error().Err(err).Msg("terminal write failed")
	}
	if err := sv.store.SetActiveMessage(writeCtx, req.ChatID, req.MessageID); err != nil {
		log.Error().Err(err).Msg("set active message failed")
	}

	sv.bus.Publish(event.Key(req.ChatID, req.MessageID), event.Event{
		Type: event.ChatCompletion,
		Data: event.CompletionData{
			ChatID:       req.ChatID,
			MessageID:    req.MessageID,
			Content:      content,
			FinishReason: finishReason,
			Usage:        usage,
		},
	})

	sv.runFollowUps(req)
}

func (sv *Supervisor) publishCancelled(req StartRequest, content string) {
	sv.bus.Publish(event.Key(req.ChatID, req.MessageID), event.Event{
		Type: event.ChatCancelled,
		Data: event.CancelledData{
			ChatID:    req.ChatID,
			MessageID: req.MessageID,
			Content:   content,
		},
	})
}

func (sv *Supervisor) runFollowUps(req StartRequest) {
	if req.GenerateTitle {
		go sv.generateTitle(req)
	}
	if req.GenerateTags {
		go sv.generateTags(req)
	}
}

// Cancel stops the session running for chatID, if any. The session's own
// cleanup path performs the final checkpoint and emits the cancelled event.
func (sv *Supervisor) Cancel(chatID string) bool {
	sv.mu.Lock()
	r, ok := sv.active[chatID]
	if ok {
		delete(sv.active, chatID)
	}
	sv.mu.Unlock()

	if !ok {
		return false
	}

	r.cancel()
	<-r.done
	return true
}

// Active reports whether a session is running for chatID and, when one is,
// its message id.
func (sv *Supervisor) Active(chatID string) (string, bool) {
	sv.mu.Lock()
	defer sv.mu.Unlock()

	r, ok := sv.active[chatID]
	if !ok {
		return "", false
	}
	return r.messageID, true
}

// Wait blocks until the session running for chatID exits. It returns
// immediately when none is running.
func (sv *Supervisor) Wait(chatID string) {
	sv.mu.Lock()
	r, ok := sv.active[chatID]
	sv.mu.Unlock()

	if ok {
		<-r.done
	}
}

// Shutdown cancels every running session.
func (sv *Supervisor) Shutdown() {
	sv.mu.Lock()
	chats := make([]string, 0, len(sv.active))
	for chatID := range sv.active {
		chats = append(chats, chatID)
	}
	sv.mu.Unlock()

	for _, chatID := range chats {
		sv.Cancel(chatID)
	}
}
