// Package session drives one assistant message's lifecycle: it consumes a
// provider chunk stream, classifies content into typed blocks, runs the
// bounded tool-call and code-interpreter loops, checkpoints progress to the
// conversation store, and fans events out over the realtime bus.
package session

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/conduit-ai/conduit/internal/codeexec"
	"github.com/conduit-ai/conduit/internal/event"
	"github.com/conduit-ai/conduit/internal/logging"
	"github.com/conduit-ai/conduit/internal/message"
	"github.com/conduit-ai/conduit/internal/provider"
	"github.com/conduit-ai/conduit/internal/storage"
	"github.com/conduit-ai/conduit/internal/tool"
)

const (
	// MaxToolCallRetries bounds the tool-call loop. Reaching the bound
	// stops looping with partial results kept; it is not an error.
	MaxToolCallRetries = 10
	// MaxCodeRetries bounds the code-interpreter loop.
	MaxCodeRetries = 5

	// RetryInitialInterval is the initial interval for provider retries.
	RetryInitialInterval = time.Second
	// RetryMaxInterval caps the backoff interval.
	RetryMaxInterval = 30 * time.Second
	// RetryMaxElapsedTime caps the total retry window.
	RetryMaxElapsedTime = 2 * time.Minute
	// MaxProviderRetries bounds initial-invocation retries.
	MaxProviderRetries = 3
)

// PersistencePolicy selects how often a session checkpoints.
type PersistencePolicy string

const (
	// PolicyRealtime writes a content-only checkpoint on every delta plus
	// one final write carrying usage and the active-message pointer.
	PolicyRealtime PersistencePolicy = "realtime"
	// PolicyBatch performs a single terminal write with content, usage and
	// the active-message pointer together.
	PolicyBatch PersistencePolicy = "batch"
)

// Filter is an inbound chunk hook. Returning false drops the chunk.
type Filter func(chunk provider.Chunk) (provider.Chunk, bool)

// errCancelled marks cooperative cancellation inside the consume loop so
// run can take its single cleanup path.
var errCancelled = errors.New("session cancelled")

// Options configures one session.
type Options struct {
	ChatID    string
	MessageID string

	Provider provider.Provider
	ModelID  string
	Messages []*schema.Message

	Tools    *tool.Registry
	Direct   *tool.Direct
	Executor codeexec.Executor
	Images   *codeexec.ImageCache

	Store      *storage.Store
	Bus        *event.Bus
	Classifier *message.Classifier

	Policy      PersistencePolicy
	Filters     []Filter
	CodeEnabled bool

	MaxTokens   int
	Temperature float64
}

// Session owns one assistant message. It is mutated only by the goroutine
// that runs it; the store row for its message id has no other writer.
type Session struct {
	opts Options
	log  zerolog.Logger

	blocks []message.Block
	usage  *message.Usage
	acc    message.Accumulator

	// history is the working copy of the provider conversation; reinvocation
	// turns appended here.
	history []*schema.Message
	// mark indexes the first block not yet rendered into history.
	mark int

	retriesTool int
	retriesCode int

	finishReason string
	streamErr    error
}

// New creates a session. The block list is seeded from a previously
// persisted partial message when one exists, otherwise from an empty Text
// block.
func New(opts Options) *Session {
	if opts.Classifier == nil {
		opts.Classifier = message.NewClassifier(nil)
	}
	if opts.Policy == "" {
		opts.Policy = PolicyRealtime
	}

	s := &Session{
		opts: opts,
		log: logging.With().
			Str("chat_id", opts.ChatID).
			Str("message_id", opts.MessageID).
			Logger(),
		history: append([]*schema.Message(nil), opts.Messages...),
	}
	s.seedBlocks()
	return s
}

func (s *Session) seedBlocks() {
	doc, err := s.opts.Store.GetMessage(context.Background(), s.opts.MessageID)
	if err == nil {
		if raw, ok := doc["blocks"].(string); ok && raw != "" {
			if blocks, err := message.UnmarshalBlocks([]byte(raw)); err == nil && len(blocks) > 0 {
				s.blocks = blocks
				return
			}
		}
	}
	s.blocks = []message.Block{message.NewTextBlock("")}
}

// Run drives the session to a terminal state. The returned error reports
// an unrecoverable provider failure on the initial invocation; everything
// past that point is handled as data and Run returns nil.
func (s *Session) Run(ctx context.Context) error {
	stream, err := s.invoke(ctx)
	if err != nil {
		if ctx.Err() != nil {
			s.finalizeCancelled()
			return nil
		}
		s.finalizeError(err)
		return err
	}

	s.publish(event.Event{
		Type: event.ModelSelected,
		Data: event.ModelSelectedData{
			ChatID:    s.opts.ChatID,
			MessageID: s.opts.MessageID,
			ModelID:   stream.ModelID,
		},
	})

	for {
		err := s.consume(ctx, stream)
		stream.Close()

		if errors.Is(err, errCancelled) {
			s.finalizeCancelled()
			return nil
		}
		if s.streamErr != nil {
			// Provider errors terminate the session but keep whatever
			// content already accumulated.
			s.finalizeError(s.streamErr)
			return nil
		}

		if calls := s.acc.Drain(); len(calls) > 0 {
			if s.retriesTool >= MaxToolCallRetries {
				break
			}
			s.retriesTool++

			results := s.executeToolCalls(ctx, calls)
			if ctx.Err() != nil {
				s.finalizeCancelled()
				return nil
			}

			next, err := s.reinvokeWithTools(ctx, calls, results)
			if err != nil {
				if ctx.Err() != nil {
					s.finalizeCancelled()
					return nil
				}
				s.log.Warn().Err(err).Msg("tool loop reinvocation failed, ending loop")
				break
			}
			stream = next
			continue
		}

		if block := s.pendingCodeBlock(); block != nil {
			if s.retriesCode >= MaxCodeRetries {
				break
			}
			s.retriesCode++

			s.executeCode(ctx, block)
			if ctx.Err() != nil {
				s.finalizeCancelled()
				return nil
			}

			next, err := s.reinvokeWithTranscript(ctx)
			if err != nil {
				if ctx.Err() != nil {
					s.finalizeCancelled()
					return nil
				}
				s.log.Warn().Err(err).Msg("code loop reinvocation failed, ending loop")
				break
			}
			stream = next
			continue
		}

		break
	}

	s.finalizeSuccess()
	return nil
}

// invoke starts a completion stream, retrying transient failures with
// jittered exponential backoff.
func (s *Session) invoke(ctx context.Context) (*provider.CompletionStream, error) {
	req := &provider.CompletionRequest{
		Model:       s.opts.ModelID,
		Messages:    s.history,
		Tools:       provider.ConvertTools(s.toolInfos()),
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	}

	var stream *provider.CompletionStream
	operation := func() error {
		var err error
		stream, err = s.opts.Provider.CreateCompletion(ctx, req)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInitialInterval
	b.MaxInterval = RetryMaxInterval
	b.MaxElapsedTime = RetryMaxElapsedTime
	b.RandomizationFactor = 0.5

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, MaxProviderRetries), ctx)); err != nil {
		return nil, err
	}
	return stream, nil
}

func (s *Session) toolInfos() []provider.ToolInfo {
	if s.opts.Tools == nil {
		return nil
	}
	return s.opts.Tools.ToolInfos()
}

// consume reads the stream until EOF, routing each decoded chunk. It
// returns errCancelled when the context is cancelled, and records provider
// stream errors in s.streamErr.
func (s *Session) consume(ctx context.Context, stream *provider.CompletionStream) error {
	s.finishReason = ""
	s.streamErr = nil

	for {
		if ctx.Err() != nil {
			return errCancelled
		}

		msg, err := stream.Recv()
		if ctx.Err() != nil {
			return errCancelled
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			s.streamErr = err
			return nil
		}

		for _, chunk := range provider.DecodeChunks(msg) {
			chunk, keep := s.applyFilters(chunk)
			if !keep {
				continue
			}
			s.route(chunk)
		}
	}
}

func (s *Session) applyFilters(chunk provider.Chunk) (provider.Chunk, bool) {
	for _, f := range s.opts.Filters {
		var keep bool
		chunk, keep = f(chunk)
		if !keep {
			return nil, false
		}
	}
	return chunk, true
}

// route dispatches one typed chunk into session state.
func (s *Session) route(chunk provider.Chunk) {
	switch c := chunk.(type) {
	case provider.TextChunk:
		s.closeNativeReasoning()
		s.blocks = message.AppendText(s.blocks, c.Text)
		s.blocks = s.opts.Classifier.Classify(s.blocks)
		if s.opts.Policy == PolicyRealtime {
			s.checkpoint(false)
		}
		s.emitDelta(c.Text)
	case provider.ReasoningChunk:
		s.appendNativeReasoning(c.Text)
		if s.opts.Policy == PolicyRealtime {
			s.checkpoint(false)
		}
	case provider.ToolCallChunk:
		for _, call := range c.Calls {
			s.acc.Add(call.Index, call.ID, call.FunctionName, call.Arguments)
		}
	case provider.UsageChunk:
		u := c.Usage
		s.usage = &u
	case provider.FinishChunk:
		s.finishReason = c.Reason
	}
}

// appendNativeReasoning routes a provider-native reasoning delta into the
// trailing native reasoning block, opening one when absent. Native blocks
// carry no tags and are closed by the first ordinary text delta.
func (s *Session) appendNativeReasoning(delta string) {
	if len(s.blocks) > 0 {
		if last, ok := s.blocks[len(s.blocks)-1].(*message.ReasoningBlock); ok && last.StartTag == "" && !last.Closed() {
			last.Content += delta
			return
		}
	}

	// Pop a trailing empty text block so the reasoning block stays the
	// open trailing element.
	if len(s.blocks) > 0 {
		if last, ok := s.blocks[len(s.blocks)-1].(*message.TextBlock); ok && last.Content == "" {
			s.blocks = s.blocks[:len(s.blocks)-1]
		}
	}

	s.blocks = append(s.blocks, &message.ReasoningBlock{
		Type:      message.BlockReasoning,
		Content:   delta,
		StartedAt: time.Now().Unix(),
	})
}

func (s *Session) closeNativeReasoning() {
	if len(s.blocks) == 0 {
		return
	}
	last, ok := s.blocks[len(s.blocks)-1].(*message.ReasoningBlock)
	if !ok || last.StartTag != "" || last.Closed() {
		return
	}

	endedAt := time.Now().Unix()
	duration := endedAt - last.StartedAt
	last.EndedAt = &endedAt
	last.Duration = &duration
}

// pendingCodeBlock returns the trailing code-interpreter block awaiting
// execution, tolerating the empty Text block the classifier pushes after a
// close tag.
func (s *Session) pendingCodeBlock() *message.CodeInterpreterBlock {
	if !s.opts.CodeEnabled || s.opts.Executor == nil {
		return nil
	}

	idx := len(s.blocks) - 1
	if idx >= 0 {
		if text, ok := s.blocks[idx].(*message.TextBlock); ok && text.Content == "" {
			idx--
		}
	}
	if idx < 0 {
		return nil
	}

	block, ok := s.blocks[idx].(*message.CodeInterpreterBlock)
	if !ok || !block.Closed() || block.Output != nil {
		return nil
	}
	return block
}

func (s *Session) emitDelta(delta string) {
	s.publish(event.Event{
		Type: event.ChatMessageDelta,
		Data: event.DeltaData{
			ChatID:    s.opts.ChatID,
			MessageID: s.opts.MessageID,
			Delta:     delta,
		},
	})
}

func (s *Session) emitMessage() {
	s.publish(event.Event{
		Type: event.ChatMessage,
		Data: event.MessageData{
			ChatID:    s.opts.ChatID,
			MessageID: s.opts.MessageID,
			Content:   message.Serialize(s.blocks),
		},
	})
}

func (s *Session) publish(e event.Event) {
	s.opts.Bus.Publish(event.Key(s.opts.ChatID, s.opts.MessageID), e)
}

// checkpoint writes the serialized content to the store. Intermediate
// checkpoints are content-only; the final checkpoint attaches usage and
// marks the message active. Re-issuing the same checkpoint overwrites, so
// a retried write cannot duplicate content.
func (s *Session) checkpoint(final bool) {
	ctx := context.Background()

	raw, err := message.MarshalBlocks(s.blocks)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal blocks for checkpoint")
		return
	}

	fields := map[string]any{
		"role":    "assistant",
		"chat_id": s.opts.ChatID,
		"model":   s.opts.ModelID,
		"content": message.Serialize(s.blocks),
		"blocks":  string(raw),
	}
	if final {
		fields["done"] = true
		if s.usage != nil {
			fields["usage"] = map[string]any{
				"prompt_tokens":     s.usage.PromptTokens,
				"completion_tokens": s.usage.CompletionTokens,
				"total_tokens":      s.usage.TotalTokens,
			}
		}
	}

	if err := s.opts.Store.UpsertMessageFields(ctx, s.opts.MessageID, fields); err != nil {
		// The session continues in memory; the next checkpoint retries.
		s.log.Error().Err(err).Msg("checkpoint write failed")
		return
	}

	if final {
		if err := s.opts.Store.SetActiveMessage(ctx, s.opts.ChatID, s.opts.MessageID); err != nil {
			s.log.Error().Err(err).Msg("set active message failed")
		}
	}
}

// finalizeSuccess is the normal terminal path: one final checkpoint with
// usage, a completion event, then detached follow-ups.
func (s *Session) finalizeSuccess() {
	s.checkpoint(true)

	s.publish(event.Event{
		Type: event.ChatCompletion,
		Data: event.CompletionData{
			ChatID:       s.opts.ChatID,
			MessageID:    s.opts.MessageID,
			Content:      message.Serialize(s.blocks),
			FinishReason: s.finishReason,
			Usage:        s.usage,
		},
	})
}

// finalizeError surfaces a provider error as a terminal completion event.
// Accumulated content is preserved.
func (s *Session) finalizeError(err error) {
	s.checkpoint(true)

	s.publish(event.Event{
		Type: event.ChatCompletion,
		Data: event.CompletionData{
			ChatID:    s.opts.ChatID,
			MessageID: s.opts.MessageID,
			Content:   message.Serialize(s.blocks),
			Usage:     s.usage,
			Error:     err.Error(),
		},
	})
}

// finalizeCancelled is the single cancellation cleanup path: exactly one
// best-effort checkpoint, a cancelled event, and no reinvocation.
func (s *Session) finalizeCancelled() {
	s.checkpoint(true)

	s.publish(event.Event{
		Type: event.ChatCancelled,
		Data: event.CancelledData{
			ChatID:    s.opts.ChatID,
			MessageID: s.opts.MessageID,
			Content:   message.Serialize(s.blocks),
		},
	})
}

// Blocks exposes the current block list for the supervisor and tests.
func (s *Session) Blocks() []message.Block {
	return s.blocks
}
