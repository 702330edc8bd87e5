package message

import (
	"regexp"
	"strings"
	"time"
)

// BlockKind identifies which typed block a tag pair opens.
type BlockKind string

const (
	KindReasoning       BlockKind = "reasoning"
	KindCodeInterpreter BlockKind = "code_interpreter"
	KindSolution        BlockKind = "solution"
)

// TagSpec declares one start/end tag pair and the block kind it opens.
// Classification scans specs in declaration order.
type TagSpec struct {
	Kind     BlockKind `json:"kind" yaml:"kind"`
	StartTag string    `json:"start_tag" yaml:"start_tag"`
	EndTag   string    `json:"end_tag" yaml:"end_tag"`
}

// DefaultTagSpecs returns the built-in tag set: the common reasoning tag
// aliases, a single code-interpreter pair, and a solution pair.
func DefaultTagSpecs() []TagSpec {
	return []TagSpec{
		{Kind: KindReasoning, StartTag: "think", EndTag: "think"},
		{Kind: KindReasoning, StartTag: "thinking", EndTag: "thinking"},
		{Kind: KindReasoning, StartTag: "reason", EndTag: "reason"},
		{Kind: KindReasoning, StartTag: "reasoning", EndTag: "reasoning"},
		{Kind: KindCodeInterpreter, StartTag: "code_interpreter", EndTag: "code_interpreter"},
		{Kind: KindSolution, StartTag: "solution", EndTag: "solution"},
	}
}

var attrPattern = regexp.MustCompile(`(\w+)="([^"]*)"`)

// compiledSpec caches the start-tag pattern for one TagSpec. The pattern
// matches the bare tag and the attributed form (<tag attr="v">).
type compiledSpec struct {
	TagSpec
	start *regexp.Regexp
}

// Classifier incrementally splits a growing text buffer into typed blocks.
// It is a pure state machine over the block list it is handed: classifying
// the same cumulative text twice from a fresh list yields an identical list.
type Classifier struct {
	specs []compiledSpec

	// now is injectable so tests get deterministic timestamps.
	now func() time.Time
}

// NewClassifier builds a classifier over the given tag set. A nil or empty
// set falls back to DefaultTagSpecs.
func NewClassifier(specs []TagSpec) *Classifier {
	if len(specs) == 0 {
		specs = DefaultTagSpecs()
	}

	compiled := make([]compiledSpec, 0, len(specs))
	for _, spec := range specs {
		compiled = append(compiled, compiledSpec{
			TagSpec: spec,
			start:   regexp.MustCompile(`<` + regexp.QuoteMeta(spec.StartTag) + `(\s+[^>]*)?>`),
		})
	}

	return &Classifier{specs: compiled, now: time.Now}
}

// WithClock replaces the classifier's time source. Intended for tests.
func (c *Classifier) WithClock(now func() time.Time) *Classifier {
	c.now = now
	return c
}

// Classify reruns tag detection over the trailing block and returns the
// updated list. The trailing block is the only mutable one:
//
//   - trailing Text: the first matching start tag (in declaration order)
//     splits the text and opens a typed block,
//   - trailing typed block: its end tag finalizes the block and pushes a
//     fresh Text block seeded with whatever followed the tag.
//
// A single delta can complete several transitions (e.g. "<think>x</think>y"),
// so detection loops until the list is stable. Unclosed blocks stay open;
// closure is driven only by end-tag detection, never by stream termination.
func (c *Classifier) Classify(blocks []Block) []Block {
	if len(blocks) == 0 {
		blocks = append(blocks, NewTextBlock(""))
	}

	for {
		var changed bool
		blocks, changed = c.step(blocks)
		if !changed {
			return blocks
		}
	}
}

// step performs at most one open/close transition.
func (c *Classifier) step(blocks []Block) ([]Block, bool) {
	switch last := blocks[len(blocks)-1].(type) {
	case *TextBlock:
		return c.scanStart(blocks, last)
	case *ReasoningBlock:
		if last.Closed() {
			return blocks, false
		}
		return c.scanEnd(blocks, last.EndTag, last.Content, func(content string, endedAt int64) {
			last.Content = content
			last.EndedAt = &endedAt
			duration := endedAt - last.StartedAt
			last.Duration = &duration
		})
	case *CodeInterpreterBlock:
		if last.Closed() {
			return blocks, false
		}
		return c.scanEnd(blocks, last.EndTag, last.Content, func(content string, endedAt int64) {
			last.Content = content
			last.EndedAt = &endedAt
		})
	case *SolutionBlock:
		if last.EndedAt != nil {
			return blocks, false
		}
		return c.scanEnd(blocks, last.EndTag, last.Content, func(content string, endedAt int64) {
			last.Content = content
			last.EndedAt = &endedAt
		})
	default:
		// Tool-call blocks carry no taggable text.
		return blocks, false
	}
}

// scanStart looks for the first configured start tag inside the trailing
// Text block. Content before the tag stays in the Text block (popped when
// blank); content after the opening tag seeds the new typed block.
func (c *Classifier) scanStart(blocks []Block, text *TextBlock) ([]Block, bool) {
	for _, spec := range c.specs {
		loc := spec.start.FindStringSubmatchIndex(text.Content)
		if loc == nil {
			continue
		}

		before := text.Content[:loc[0]]
		after := text.Content[loc[1]:]

		attrs := parseAttributes(text.Content[loc[0]:loc[1]])

		if strings.TrimSpace(before) == "" {
			blocks = blocks[:len(blocks)-1]
		} else {
			text.Content = before
		}

		blocks = append(blocks, c.openBlock(spec, after, attrs))
		return blocks, true
	}
	return blocks, false
}

// scanEnd looks for the trailing typed block's end tag inside its content.
// On a match the block is finalized with the tag markers stripped, and a new
// Text block seeded with the remainder is pushed. A block whose stripped
// content is blank is discarded rather than emitted empty.
func (c *Classifier) scanEnd(blocks []Block, endTag, content string, finalize func(content string, endedAt int64)) ([]Block, bool) {
	marker := "</" + endTag + ">"
	idx := strings.Index(content, marker)
	if idx < 0 {
		return blocks, false
	}

	inner := strings.TrimSpace(content[:idx])
	remainder := strings.TrimLeft(content[idx+len(marker):], "\n")

	if inner == "" {
		blocks = blocks[:len(blocks)-1]
	} else {
		finalize(inner, c.now().Unix())
	}

	blocks = append(blocks, NewTextBlock(remainder))
	return blocks, true
}

func (c *Classifier) openBlock(spec compiledSpec, content string, attrs map[string]string) Block {
	startedAt := c.now().Unix()
	content = strings.TrimLeft(content, "\n")

	switch spec.Kind {
	case KindCodeInterpreter:
		return &CodeInterpreterBlock{
			Type:       BlockCodeInterpreter,
			Content:    content,
			Attributes: attrs,
			StartTag:   spec.StartTag,
			EndTag:     spec.EndTag,
			StartedAt:  startedAt,
		}
	case KindSolution:
		return &SolutionBlock{
			Type:      BlockSolution,
			Content:   content,
			StartTag:  spec.StartTag,
			EndTag:    spec.EndTag,
			StartedAt: startedAt,
		}
	default:
		return &ReasoningBlock{
			Type:       BlockReasoning,
			Content:    content,
			Attributes: attrs,
			StartTag:   spec.StartTag,
			EndTag:     spec.EndTag,
			StartedAt:  startedAt,
		}
	}
}

// parseAttributes extracts key="value" pairs from an opening tag.
func parseAttributes(tag string) map[string]string {
	matches := attrPattern.FindAllStringSubmatch(tag, -1)
	if len(matches) == 0 {
		return nil
	}

	attrs := make(map[string]string, len(matches))
	for _, m := range matches {
		attrs[m[1]] = m[2]
	}
	return attrs
}

// AppendText appends a content delta to the trailing block. Open typed
// blocks receive the delta into their content (their end tag may arrive in
// a later delta); a closed block, a tool-calls block, or an empty list gets
// a fresh Text block instead.
func AppendText(blocks []Block, delta string) []Block {
	if len(blocks) > 0 {
		switch last := blocks[len(blocks)-1].(type) {
		case *TextBlock:
			last.Content += delta
			return blocks
		case *ReasoningBlock:
			if !last.Closed() {
				last.Content += delta
				return blocks
			}
		case *CodeInterpreterBlock:
			if !last.Closed() {
				last.Content += delta
				return blocks
			}
		case *SolutionBlock:
			if last.EndedAt == nil {
				last.Content += delta
				return blocks
			}
		}
	}
	return append(blocks, NewTextBlock(delta))
}
