// Package claude provides utilities for invoking Claude CLI.
package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Service is a base type for components that invoke Claude CLI.
// It encapsulates the common invocation pattern: build a Request, invoke,
// extract the result text, and unmarshal it into a caller-provided type.
//
//	type MyComponent struct {
//	    claude.Service
//	}
//
//	func (c *MyComponent) DoSomething(ctx context.Context) (*Result, error) {
//	    var result Result
//	    if err := c.InvokeAndParse(ctx, prompt, schema, &result); err != nil {
//	        return nil, err
//	    }
//	    return &result, nil
//	}
type Service struct {
	inv *Invoker
}

// NewService creates a new Service with the specified timeout.
func NewService(timeout time.Duration) *Service {
	inv := NewInvoker()
	inv.Timeout = timeout
	return &Service{inv: inv}
}

// NewServiceWithInvoker creates a Service using an external Invoker.
// This allows sharing a single Invoker across multiple components for
// consistent configuration.
func NewServiceWithInvoker(inv *Invoker) *Service {
	return &Service{inv: inv}
}

// Invoker returns the underlying Invoker for advanced use cases.
func (s *Service) Invoker() *Invoker {
	return s.inv
}

// InvokeAndParse invokes Claude CLI with the given prompt and schema, then
// parses the resulting text into the provided result pointer.
func (s *Service) InvokeAndParse(ctx context.Context, prompt, schema string, result interface{}) error {
	res, err := s.inv.Invoke(ctx, Request{Prompt: prompt, Schema: schema})
	if err != nil {
		return err
	}
	if !res.IsSuccess() {
		return fmt.Errorf("claude invocation failed: %s", res.Error)
	}
	if res.Result == "" {
		return fmt.Errorf("empty response from claude")
	}

	if err := json.Unmarshal([]byte(res.Result), result); err != nil {
		if extracted := ExtractJSON(res.Result); extracted != "" {
			if err2 := json.Unmarshal([]byte(extracted), result); err2 == nil {
				return nil
			}
		}
		return fmt.Errorf("failed to unmarshal response: %w (content: %s)", err, truncate(res.Result, 200))
	}
	return nil
}

// ExtractJSON attempts to extract a JSON object from mixed content.
func ExtractJSON(content string) string {
	start := -1
	end := -1
	for i, c := range content {
		if c == '{' {
			start = i
			break
		}
	}
	for i := len(content) - 1; i >= 0; i-- {
		if content[i] == '}' {
			end = i
			break
		}
	}
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return ""
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
