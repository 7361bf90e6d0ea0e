package fakes

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FakeCommandExecutor records commands and answers from a response table
type FakeCommandExecutor struct {
	mu sync.Mutex

	// Responses maps "command arg1 arg2" prefixes to responses
	Responses map[string]CommandResponse
	// Calls records every Execute call in order
	Calls []CommandCall
	// OnExecute runs before the response is chosen, e.g. to create files
	// the real command would write.
	OnExecute func(call CommandCall) error
	// StrictMode fails commands with no configured response
	StrictMode bool
}

// CommandResponse is the canned output of a command
type CommandResponse struct {
	Stdout []byte
	Stderr []byte
	Err    error
}

// CommandCall is one recorded Execute call
type CommandCall struct {
	Dir     string
	Command string
	Args    []string
}

// Line returns the command and arguments joined by spaces
func (c CommandCall) Line() string {
	if len(c.Args) == 0 {
		return c.Command
	}
	return c.Command + " " + strings.Join(c.Args, " ")
}

// NewFakeCommandExecutor creates an executor that succeeds with no output
func NewFakeCommandExecutor() *FakeCommandExecutor {
	return &FakeCommandExecutor{Responses: make(map[string]CommandResponse)}
}

// AddResponse registers a response for commands starting with prefix
func (f *FakeCommandExecutor) AddResponse(prefix string, resp CommandResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Responses[prefix] = resp
}

// AddErrorResponse makes commands starting with prefix fail
func (f *FakeCommandExecutor) AddErrorResponse(prefix, stderr string, exitCode int) {
	f.AddResponse(prefix, CommandResponse{
		Stderr: []byte(stderr),
		Err:    fmt.Errorf("exit status %d", exitCode),
	})
}

// Execute records the call and returns the matching response
func (f *FakeCommandExecutor) Execute(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, error) {
	call := CommandCall{Dir: dir, Command: name, Args: append([]string(nil), args...)}

	f.mu.Lock()
	f.Calls = append(f.Calls, call)
	hook := f.OnExecute
	f.mu.Unlock()

	if hook != nil {
		if err := hook(call); err != nil {
			return nil, nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	line := call.Line()
	if resp, ok := f.Responses[line]; ok {
		return resp.Stdout, resp.Stderr, resp.Err
	}
	for prefix, resp := range f.Responses {
		if strings.HasPrefix(line, prefix) {
			return resp.Stdout, resp.Stderr, resp.Err
		}
	}

	if f.StrictMode {
		return nil, nil, fmt.Errorf("fake: no response configured for command: %s", line)
	}
	return []byte{}, []byte{}, nil
}

// CallsTo returns the recorded calls of one command
func (f *FakeCommandExecutor) CallsTo(name string) []CommandCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	var matches []CommandCall
	for _, call := range f.Calls {
		if call.Command == name {
			matches = append(matches, call)
		}
	}
	return matches
}
