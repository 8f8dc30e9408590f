package search

import (
	"strings"
	"sync"
	"time"

	"github.com/pitabwire/coreitems/internal/definition"
	"github.com/pitabwire/coreitems/model"
)

// DefaultPromptTimeout bounds how long a prompt waits for input.
const DefaultPromptTimeout = 30 * time.Second

// cancelWord aborts a prompt, in any case.
const cancelWord = "cancel"

// ErrNotAwaiting is returned for input from a user without an open prompt.
var ErrNotAwaiting = &model.ErrorEnvelope{
	Code:    model.ErrNotAwaiting,
	Message: "no search prompt is awaiting input",
}

// Result is the answer to a submitted prompt.
type Result struct {
	Cancelled bool             `json:"cancelled"`
	Term      string           `json:"term,omitempty"`
	Matches   []CatalogSummary `json:"matches"`
}

// Prompts tracks users asked to type a catalog search term.
type Prompts struct {
	registry *definition.Registry
	timeout  time.Duration
	awaiting sync.Map // user -> time.Time
}

// NewPrompts creates a prompt registry. A non-positive timeout uses
// DefaultPromptTimeout.
func NewPrompts(registry *definition.Registry, timeout time.Duration) *Prompts {
	if timeout <= 0 {
		timeout = DefaultPromptTimeout
	}
	return &Prompts{registry: registry, timeout: timeout}
}

// Timeout returns the prompt timeout.
func (p *Prompts) Timeout() time.Duration { return p.timeout }

// Begin opens a prompt for user, replacing any open one. When the prompt is
// still open after the timeout it is closed and onTimeout runs. A prompt
// answered, cancelled or reopened in the meantime is left alone.
func (p *Prompts) Begin(user string, onTimeout func()) {
	start := time.Now()
	p.awaiting.Store(user, start)

	time.AfterFunc(p.timeout, func() {
		v, ok := p.awaiting.Load(user)
		if !ok || time.Since(v.(time.Time)) < p.timeout {
			return
		}
		if p.awaiting.CompareAndDelete(user, start) && onTimeout != nil {
			onTimeout()
		}
	})
}

// Submit answers the open prompt of user.
func (p *Prompts) Submit(user, input string) (Result, error) {
	if _, ok := p.awaiting.LoadAndDelete(user); !ok {
		return Result{}, ErrNotAwaiting
	}
	input = strings.TrimSpace(input)
	if strings.EqualFold(input, cancelWord) {
		return Result{Cancelled: true, Matches: []CatalogSummary{}}, nil
	}
	term := strings.ToLower(input)
	return Result{Term: term, Matches: Catalogs(p.registry, term)}, nil
}

// Cancel closes the open prompt of user and reports whether one was open.
func (p *Prompts) Cancel(user string) bool {
	_, ok := p.awaiting.LoadAndDelete(user)
	return ok
}

// Awaiting reports whether user has an open prompt.
func (p *Prompts) Awaiting(user string) bool {
	_, ok := p.awaiting.Load(user)
	return ok
}
