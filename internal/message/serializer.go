package message

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Serialize renders a block list into the single display string shown to
// clients. The output is deterministic: the same block list always renders
// byte-identical text.
func Serialize(blocks []Block) string {
	parts := make([]string, 0, len(blocks))

	for _, block := range blocks {
		switch b := block.(type) {
		case *TextBlock:
			parts = append(parts, b.Content)
		case *ReasoningBlock:
			parts = append(parts, serializeReasoning(b))
		case *ToolCallsBlock:
			parts = append(parts, serializeToolCalls(b))
		case *CodeInterpreterBlock:
			parts = append(parts, serializeCodeInterpreter(b))
		case *SolutionBlock:
			parts = append(parts, b.Content)
		}
	}

	return strings.Join(parts, "\n")
}

// SerializeForModel renders a block list into provider-ready raw text for
// re-invocation: reasoning and code-interpreter sections are restored with
// their original tag markers so the model sees its own prior output, and
// execution output is appended as a fenced block.
func SerializeForModel(blocks []Block) string {
	parts := make([]string, 0, len(blocks))

	for _, block := range blocks {
		switch b := block.(type) {
		case *TextBlock:
			if b.Content != "" {
				parts = append(parts, b.Content)
			}
		case *ReasoningBlock:
			if b.StartTag == "" {
				parts = append(parts, "<think>\n"+b.Content+"\n</think>")
				continue
			}
			section := "<" + b.StartTag + ">\n" + b.Content
			if b.Closed() {
				section += "\n</" + b.EndTag + ">"
			}
			parts = append(parts, section)
		case *ToolCallsBlock:
			parts = append(parts, serializeToolCallsRaw(b))
		case *CodeInterpreterBlock:
			section := "<" + b.StartTag + formatAttributes(b.Attributes) + ">\n" + b.Content
			if b.Closed() {
				section += "\n</" + b.EndTag + ">"
			}
			if b.Output != nil {
				section += "\n```output\n" + *b.Output + "\n```"
			}
			parts = append(parts, section)
		case *SolutionBlock:
			section := "<" + b.StartTag + ">\n" + b.Content
			if b.EndedAt != nil {
				section += "\n</" + b.EndTag + ">"
			}
			parts = append(parts, section)
		}
	}

	return strings.Join(parts, "\n")
}

// serializeReasoning renders a collapsed summary for closed reasoning and
// an in-progress marker for a block whose end tag never arrived. Leaving
// the open block visible is intentional: a dropped end tag surfaces as a
// perpetually running thought instead of silently vanishing.
func serializeReasoning(b *ReasoningBlock) string {
	quoted := quoteLines(b.Content)
	if b.Closed() {
		duration := int64(0)
		if b.Duration != nil {
			duration = *b.Duration
		}
		summary := fmt.Sprintf("Thought for %d seconds", duration)
		return fmt.Sprintf("<details type=\"reasoning\" done=\"true\" duration=\"%d\">\n<summary>%s</summary>\n%s\n</details>", duration, summary, quoted)
	}
	return fmt.Sprintf("<details type=\"reasoning\" done=\"false\">\n<summary>Thinking…</summary>\n%s\n</details>", quoted)
}

func serializeToolCalls(b *ToolCallsBlock) string {
	results := make(map[string]ToolResult, len(b.Results))
	for _, r := range b.Results {
		results[r.ToolCallID] = r
	}

	sections := make([]string, 0, len(b.Calls))
	for _, call := range b.Calls {
		if result, ok := results[call.ID]; ok {
			section := fmt.Sprintf("<details type=\"tool_calls\" done=\"true\" id=%q name=%q>\n<summary>Tool executed: %s</summary>\n%s\n</details>",
				call.ID, call.FunctionName, call.FunctionName, result.Content)
			if len(result.Files) > 0 {
				section += "\n" + strings.Join(result.Files, "\n")
			}
			sections = append(sections, section)
			continue
		}
		sections = append(sections, fmt.Sprintf("<details type=\"tool_calls\" done=\"false\" id=%q name=%q>\n<summary>Executing tool: %s</summary>\n</details>",
			call.ID, call.FunctionName, call.FunctionName))
	}

	return strings.Join(sections, "\n")
}

func serializeToolCallsRaw(b *ToolCallsBlock) string {
	payload := struct {
		Calls   []ToolCall   `json:"calls"`
		Results []ToolResult `json:"results,omitempty"`
	}{Calls: b.Calls, Results: b.Results}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}

func serializeCodeInterpreter(b *CodeInterpreterBlock) string {
	lang := b.Lang()
	section := "```" + lang + "\n" + b.Content + "\n```"
	if b.Output != nil {
		section += "\n<details type=\"code_interpreter\" done=\"true\">\n<summary>Executed code</summary>\n```output\n" + *b.Output + "\n```\n</details>"
	}
	return section
}

// formatAttributes renders tag attributes sorted by key so output stays
// byte-stable across calls.
func formatAttributes(attrs map[string]string) string {
	if len(attrs) == 0 {
		return ""
	}

	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%q", k, attrs[k])
	}
	return sb.String()
}

func quoteLines(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n")
}
