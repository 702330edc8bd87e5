package session

import (
	"context"

	"github.com/conduit-ai/conduit/internal/message"
)

// executeCode runs one closed code-interpreter block, attaches its output
// (timeouts and kernel errors arrive as ordinary output text), and rewrites
// inline images through the content-addressed cache. A fresh text block is
// appended so the model's continuation has somewhere to stream.
func (s *Session) executeCode(ctx context.Context, block *message.CodeInterpreterBlock) {
	lang := block.Lang()
	if lang == "" {
		lang = "python"
	}

	result, err := s.opts.Executor.Execute(ctx, block.Content, lang)
	output := result.Text()
	if err != nil {
		// Transport failures become output so the model can react.
		output = "Error: " + err.Error()
	}

	if s.opts.Images != nil && output != "" {
		rewritten, err := s.opts.Images.Extract(output)
		if err != nil {
			s.log.Warn().Err(err).Msg("image extraction failed")
		} else {
			output = rewritten
		}
	}

	block.Output = &output

	if last, ok := s.blocks[len(s.blocks)-1].(*message.TextBlock); !ok || last.Content != "" {
		s.blocks = append(s.blocks, message.NewTextBlock(""))
	}

	s.emitMessage()
	if s.opts.Policy == PolicyRealtime {
		s.checkpoint(false)
	}
}
