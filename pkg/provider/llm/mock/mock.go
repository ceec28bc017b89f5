// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the gateway sends correct
// CompletionRequests and to feed controlled responses without a live LLM
// backend. All fields are safe to set before calling any method; mutating
// them during a concurrent call is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{
//	    CompleteResponses: []*llm.CompletionResponse{{Content: "T,F,T"}},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/kolloq/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
// Zero values for response fields cause methods to return zero values and nil
// errors. Set Err fields to inject errors.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// CompleteResponses is consumed one element per Complete call; the last
	// element repeats once the slice is exhausted. May be empty (Complete
	// then returns CompleteResponse, which may be nil).
	CompleteResponses []*llm.CompletionResponse

	// CompleteResponse is returned when CompleteResponses is empty.
	CompleteResponse *llm.CompletionResponse

	// CompleteErrs is consumed one element per Complete call, in parallel
	// with CompleteResponses. A nil entry means no error for that call.
	CompleteErrs []error

	// CompleteErr, if non-nil, is returned when CompleteErrs is exhausted.
	CompleteErr error

	// Model is returned by ModelID. Defaults to "mock-model" when empty.
	Model string

	// --- Call records (read after test) ---

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall

	calls int
}

// Complete records the call and returns the next configured response/error pair.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})

	n := p.calls
	p.calls++

	var err error
	switch {
	case n < len(p.CompleteErrs):
		err = p.CompleteErrs[n]
	default:
		err = p.CompleteErr
	}

	var resp *llm.CompletionResponse
	switch {
	case n < len(p.CompleteResponses):
		resp = p.CompleteResponses[n]
	case len(p.CompleteResponses) > 0:
		resp = p.CompleteResponses[len(p.CompleteResponses)-1]
	default:
		resp = p.CompleteResponse
	}

	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ModelID returns Model, or "mock-model" when unset.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Model == "" {
		return "mock-model"
	}
	return p.Model
}

// Reset clears all recorded calls and the consumption cursor. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
	p.calls = 0
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
