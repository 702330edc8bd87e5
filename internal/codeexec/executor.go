// Package codeexec executes code-interpreter blocks against a pluggable
// backend and post-processes their output. Execution failures and timeouts
// are returned as ordinary output text, never as errors that would abort a
// session.
package codeexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Result is the outcome of one code execution. Stdout and Output are both
// optional; a timeout or kernel error arrives stringified in Stdout.
type Result struct {
	Stdout string `json:"stdout,omitempty"`
	Output string `json:"output,omitempty"`
}

// Text renders the result for embedding into a code block's output field.
func (r Result) Text() string {
	parts := make([]string, 0, 2)
	if r.Stdout != "" {
		parts = append(parts, r.Stdout)
	}
	if r.Output != "" {
		parts = append(parts, r.Output)
	}
	return strings.Join(parts, "\n")
}

// Executor runs one code snippet.
type Executor interface {
	Execute(ctx context.Context, code, lang string) (Result, error)
}

// RemoteExecutor submits code to a notebook-kernel gateway over HTTP.
type RemoteExecutor struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

// NewRemoteExecutor creates a remote executor. timeout bounds one
// execution; on expiry the timeout is reported as output content.
func NewRemoteExecutor(baseURL string, timeout time.Duration) *RemoteExecutor {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &RemoteExecutor{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client:  &http.Client{Timeout: timeout + 5*time.Second},
	}
}

type executeRequest struct {
	Code    string `json:"code"`
	Lang    string `json:"lang"`
	Timeout int    `json:"timeout"`
}

// Execute submits the snippet and decodes the gateway's response. A
// deadline expiry yields a Result describing the timeout, not an error.
func (e *RemoteExecutor) Execute(ctx context.Context, code, lang string) (Result, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	payload, err := json.Marshal(executeRequest{
		Code:    code,
		Lang:    lang,
		Timeout: int(e.timeout.Seconds()),
	})
	if err != nil {
		return Result{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.baseURL+"/execute", bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			return Result{Stdout: fmt.Sprintf("Execution timed out after %s", e.timeout)}, nil
		}
		return Result{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{Stdout: fmt.Sprintf("Execution failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}, nil
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return Result{Stdout: string(body)}, nil
	}
	return result, nil
}
