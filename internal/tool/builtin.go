package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// TimeTool reports the current time, optionally in a named zone.
type TimeTool struct {
	now func() time.Time
}

// NewTimeTool creates a time tool.
func NewTimeTool() *TimeTool {
	return &TimeTool{now: time.Now}
}

func (t *TimeTool) ID() string          { return "get_current_time" }
func (t *TimeTool) Description() string { return "Returns the current date and time, optionally for a given IANA timezone." }

func (t *TimeTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"timezone": {
				"type": "string",
				"description": "IANA timezone name, e.g. Europe/Berlin. Defaults to UTC."
			}
		}
	}`)
}

func (t *TimeTool) Execute(ctx context.Context, args map[string]any, toolCtx *Context) (any, error) {
	loc := time.UTC
	if tz, ok := args["timezone"].(string); ok && tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("unknown timezone %q", tz)
		}
		loc = parsed
	}

	now := t.now().In(loc)
	return map[string]any{
		"datetime": now.Format(time.RFC3339),
		"timezone": loc.String(),
		"weekday":  now.Weekday().String(),
	}, nil
}

// CalculatorTool evaluates a binary arithmetic operation.
type CalculatorTool struct{}

// NewCalculatorTool creates a calculator tool.
func NewCalculatorTool() *CalculatorTool {
	return &CalculatorTool{}
}

func (t *CalculatorTool) ID() string          { return "calculator" }
func (t *CalculatorTool) Description() string { return "Performs a basic arithmetic operation on two numbers." }

func (t *CalculatorTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"operation": {
				"type": "string",
				"enum": ["add", "subtract", "multiply", "divide"],
				"description": "The operation to perform"
			},
			"a": {"type": "number", "description": "First operand"},
			"b": {"type": "number", "description": "Second operand"}
		},
		"required": ["operation", "a", "b"]
	}`)
}

func (t *CalculatorTool) Execute(ctx context.Context, args map[string]any, toolCtx *Context) (any, error) {
	a, aok := toFloat(args["a"])
	b, bok := toFloat(args["b"])
	if !aok || !bok {
		return nil, fmt.Errorf("operands must be numbers")
	}

	op, _ := args["operation"].(string)
	var result float64
	switch op {
	case "add":
		result = a + b
	case "subtract":
		result = a - b
	case "multiply":
		result = a * b
	case "divide":
		if b == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		result = a / b
	default:
		return nil, fmt.Errorf("unknown operation %q", op)
	}

	return map[string]any{"result": result}, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
