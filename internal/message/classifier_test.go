package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	t := time.Unix(1700000000, 0)
	return func() time.Time { return t }
}

func classifyText(t *testing.T, text string) []Block {
	t.Helper()
	c := NewClassifier(nil).WithClock(fixedClock())
	blocks := AppendText(nil, text)
	return c.Classify(blocks)
}

func TestClassifyPlainText(t *testing.T) {
	blocks := classifyText(t, "just some text")

	require.Len(t, blocks, 1)
	text, ok := blocks[0].(*TextBlock)
	require.True(t, ok)
	assert.Equal(t, "just some text", text.Content)
}

func TestClassifyReasoningRoundTrip(t *testing.T) {
	blocks := classifyText(t, "before<reasoning>X</reasoning>after")

	require.Len(t, blocks, 3)

	text, ok := blocks[0].(*TextBlock)
	require.True(t, ok)
	assert.Equal(t, "before", text.Content)

	reasoning, ok := blocks[1].(*ReasoningBlock)
	require.True(t, ok)
	assert.Equal(t, "X", reasoning.Content)
	require.NotNil(t, reasoning.EndedAt)
	require.NotNil(t, reasoning.Duration)
	assert.GreaterOrEqual(t, *reasoning.Duration, int64(0))

	tail, ok := blocks[2].(*TextBlock)
	require.True(t, ok)
	assert.Equal(t, "after", tail.Content)
}

func TestClassifyUnclosedCodeInterpreter(t *testing.T) {
	blocks := classifyText(t, `<code_interpreter lang="python">print(1)`)

	require.Len(t, blocks, 1)
	code, ok := blocks[0].(*CodeInterpreterBlock)
	require.True(t, ok)
	assert.Equal(t, "print(1)", code.Content)
	assert.Equal(t, "python", code.Lang())
	assert.Nil(t, code.EndedAt)
}

func TestClassifyEmptyBlockDiscarded(t *testing.T) {
	blocks := classifyText(t, "<think>  </think>Hello")

	require.Len(t, blocks, 1)
	text, ok := blocks[0].(*TextBlock)
	require.True(t, ok)
	assert.Equal(t, "Hello", text.Content)
}

func TestClassifyLeadingBlankTextPopped(t *testing.T) {
	blocks := classifyText(t, "  <think>x</think>")

	require.Len(t, blocks, 2)
	_, ok := blocks[0].(*ReasoningBlock)
	assert.True(t, ok)
	tail, ok := blocks[1].(*TextBlock)
	require.True(t, ok)
	assert.Equal(t, "", tail.Content)
}

func TestClassifyDeclarationOrderWins(t *testing.T) {
	// "solution" appears earlier in the text, but "think" is declared
	// first in the tag set, so the split happens at the think tag and the
	// solution markup stays behind as plain text.
	blocks := classifyText(t, "<solution>s</solution><think>t</think>")

	require.Len(t, blocks, 3)
	text, ok := blocks[0].(*TextBlock)
	require.True(t, ok)
	assert.Equal(t, "<solution>s</solution>", text.Content)
	reasoning, ok := blocks[1].(*ReasoningBlock)
	require.True(t, ok)
	assert.Equal(t, "t", reasoning.Content)
}

func TestClassifyIncrementalMatchesWholeBuffer(t *testing.T) {
	full := "intro <think>pondering</think>\nmiddle <code_interpreter lang=\"python\">print(1)</code_interpreter>\noutro"

	c1 := NewClassifier(nil).WithClock(fixedClock())
	whole := c1.Classify(AppendText(nil, full))

	c2 := NewClassifier(nil).WithClock(fixedClock())
	var incremental []Block
	for _, chunk := range splitChunks(full, 7) {
		incremental = AppendText(incremental, chunk)
		incremental = c2.Classify(incremental)
	}

	require.Equal(t, len(whole), len(incremental))
	assert.Equal(t, Serialize(whole), Serialize(incremental))
}

func TestClassifyIdempotent(t *testing.T) {
	text := "a<think>b</think>c<solution>d</solution>e"

	first := classifyText(t, text)
	second := classifyText(t, text)

	require.Equal(t, len(first), len(second))
	assert.Equal(t, Serialize(first), Serialize(second))
	assert.Equal(t, SerializeForModel(first), SerializeForModel(second))
}

func TestClassifyMultipleTransitionsInOneDelta(t *testing.T) {
	blocks := classifyText(t, "<think>a</think><think>b</think>tail")

	require.Len(t, blocks, 3)
	r1, ok := blocks[0].(*ReasoningBlock)
	require.True(t, ok)
	assert.Equal(t, "a", r1.Content)
	r2, ok := blocks[1].(*ReasoningBlock)
	require.True(t, ok)
	assert.Equal(t, "b", r2.Content)
	tail, ok := blocks[2].(*TextBlock)
	require.True(t, ok)
	assert.Equal(t, "tail", tail.Content)
}

func TestAppendTextAfterTypedBlock(t *testing.T) {
	blocks := classifyText(t, "<code_interpreter lang=\"python\">x = 1</code_interpreter>")
	blocks = AppendText(blocks, "more")

	text, ok := blocks[len(blocks)-1].(*TextBlock)
	require.True(t, ok)
	assert.Equal(t, "more", text.Content)
}

func splitChunks(s string, size int) []string {
	var chunks []string
	for len(s) > size {
		chunks = append(chunks, s[:size])
		s = s[size:]
	}
	return append(chunks, s)
}
