package hostexec

import (
	"context"
	"strings"
	"sync"
)

// Call is one invocation observed by a Fake.
type Call struct {
	Name string
	Args []string
}

// String renders the call as a command line.
func (c Call) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Fake is a scripted Runner. Handler, when set, decides each result;
// otherwise every command succeeds with empty output.
type Fake struct {
	Handler func(c Call) (string, error)

	mu    sync.Mutex
	calls []Call
}

// Run implements Runner.
func (f *Fake) Run(ctx context.Context, name string, args ...string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c := Call{Name: name, Args: append([]string(nil), args...)}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	if f.Handler == nil {
		return "", nil
	}
	return f.Handler(c)
}

// Calls returns the command lines run so far, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.String()
	}
	return out
}
