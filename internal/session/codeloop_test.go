package session

import (
	"context"
	"sync"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-ai/conduit/internal/codeexec"
	"github.com/conduit-ai/conduit/internal/message"
)

type fakeExecutor struct {
	mu     sync.Mutex
	result codeexec.Result
	err    error
	calls  []string
}

func (f *fakeExecutor) Execute(ctx context.Context, code, lang string) (codeexec.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, code)
	return f.result, f.err
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

const codeTurn = "<code_interpreter lang=\"python\">\nprint(1)\n</code_interpreter>"

func TestCodeLoopExecutesAndContinues(t *testing.T) {
	prov := &scriptedProvider{scripts: [][]*schema.Message{
		{
			textMsg(codeTurn),
			finishMsg("stop", 5, 5),
		},
		{
			textMsg("The result is 1."),
			finishMsg("stop", 5, 5),
		},
	}}
	exec := &fakeExecutor{result: codeexec.Result{Stdout: "1\n"}}

	opts, _, _, _ := newTestOptions(t, prov)
	opts.CodeEnabled = true
	opts.Executor = exec

	sess := New(opts)
	require.NoError(t, sess.Run(context.Background()))

	assert.Equal(t, 2, prov.invocations())
	assert.Equal(t, 1, exec.callCount())
	assert.Equal(t, "print(1)", exec.calls[0])

	var code *message.CodeInterpreterBlock
	for _, b := range sess.Blocks() {
		if cb, ok := b.(*message.CodeInterpreterBlock); ok {
			code = cb
		}
	}
	require.NotNil(t, code)
	require.NotNil(t, code.Output)
	assert.Equal(t, "1\n", *code.Output)

	last := sess.Blocks()[len(sess.Blocks())-1]
	text, ok := last.(*message.TextBlock)
	require.True(t, ok)
	assert.Equal(t, "The result is 1.", text.Content)

	// The continuation sees the executed code as the assistant's own prior
	// turn, output included, not as a tool message.
	require.Len(t, prov.requests, 2)
	reinvoke := prov.requests[1].Messages
	assistant := reinvoke[len(reinvoke)-1]
	assert.Equal(t, schema.Assistant, assistant.Role)
	assert.Empty(t, assistant.ToolCalls)
	assert.Contains(t, assistant.Content, "print(1)")
	assert.Contains(t, assistant.Content, "```output")
	assert.Contains(t, assistant.Content, "1\n")
}

func TestCodeLoopStopsAtBound(t *testing.T) {
	prov := &scriptedProvider{scripts: [][]*schema.Message{{
		textMsg(codeTurn),
		finishMsg("stop", 1, 1),
	}}}
	exec := &fakeExecutor{result: codeexec.Result{Stdout: "1\n"}}

	opts, _, _, _ := newTestOptions(t, prov)
	opts.CodeEnabled = true
	opts.Executor = exec

	sess := New(opts)
	require.NoError(t, sess.Run(context.Background()))

	assert.Equal(t, MaxCodeRetries+1, prov.invocations())
	assert.Equal(t, MaxCodeRetries, exec.callCount())
}

func TestCodeLoopDisabledLeavesBlockUnexecuted(t *testing.T) {
	prov := &scriptedProvider{scripts: [][]*schema.Message{{
		textMsg(codeTurn),
		finishMsg("stop", 1, 1),
	}}}
	exec := &fakeExecutor{result: codeexec.Result{Stdout: "1\n"}}

	opts, _, _, _ := newTestOptions(t, prov)
	opts.CodeEnabled = false
	opts.Executor = exec

	sess := New(opts)
	require.NoError(t, sess.Run(context.Background()))

	assert.Equal(t, 1, prov.invocations())
	assert.Equal(t, 0, exec.callCount())
}

func TestCodeLoopTransportErrorIsOutput(t *testing.T) {
	prov := &scriptedProvider{scripts: [][]*schema.Message{
		{
			textMsg(codeTurn),
			finishMsg("stop", 1, 1),
		},
		{
			textMsg("I could not run that."),
			finishMsg("stop", 1, 1),
		},
	}}
	exec := &fakeExecutor{err: assert.AnError}

	opts, _, _, _ := newTestOptions(t, prov)
	opts.CodeEnabled = true
	opts.Executor = exec

	sess := New(opts)
	require.NoError(t, sess.Run(context.Background()))

	var code *message.CodeInterpreterBlock
	for _, b := range sess.Blocks() {
		if cb, ok := b.(*message.CodeInterpreterBlock); ok {
			code = cb
		}
	}
	require.NotNil(t, code)
	require.NotNil(t, code.Output)
	assert.Contains(t, *code.Output, "Error:")
}
