package message

// Accumulator merges streamed partial tool-call fragments into complete,
// invocable calls. Fragments are keyed by the provider-assigned index; name
// and argument strings are concatenated onto the entry at that index.
// Arguments are never parsed during accumulation — only once the provider
// signals the call is complete does the caller run ParseArguments.
type Accumulator struct {
	calls []ToolCall
}

// Add merges one streamed fragment. An unseen index appends a new call;
// a known index concatenates onto the existing entry.
func (a *Accumulator) Add(index int, id, name, arguments string) {
	for i := range a.calls {
		if a.calls[i].Index != index {
			continue
		}
		if id != "" {
			a.calls[i].ID = id
		}
		a.calls[i].FunctionName += name
		a.calls[i].Arguments += arguments
		return
	}

	a.calls = append(a.calls, ToolCall{
		Index:        index,
		ID:           id,
		FunctionName: name,
		Arguments:    arguments,
	})
}

// Calls returns the accumulated calls in arrival order.
func (a *Accumulator) Calls() []ToolCall {
	return a.calls
}

// Drain returns the accumulated calls and resets the accumulator for the
// next streamed batch.
func (a *Accumulator) Drain() []ToolCall {
	calls := a.calls
	a.calls = nil
	return calls
}

// Empty reports whether any fragments have been accumulated.
func (a *Accumulator) Empty() bool {
	return len(a.calls) == 0
}
