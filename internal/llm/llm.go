// Package llm wraps the completion model behind a small interface so the
// capture and date-resolution flows can run against a deterministic fake.
package llm

import "context"

// Completer produces a single text completion.
type Completer interface {
	Complete(ctx context.Context, model, system, prompt string) (string, error)
}

// Fake is a scripted Completer for tests and the offline CLI. Responses are
// returned in order; after they run out the last one repeats.
type Fake struct {
	Responses []string
	Err       error

	calls int
	// Prompts records what the fake was asked, for assertions.
	Prompts []string
}

func (f *Fake) Complete(ctx context.Context, model, system, prompt string) (string, error) {
	f.Prompts = append(f.Prompts, prompt)
	if f.Err != nil {
		return "", f.Err
	}
	if len(f.Responses) == 0 {
		return "", nil
	}
	i := f.calls
	if i >= len(f.Responses) {
		i = len(f.Responses) - 1
	}
	f.calls++
	return f.Responses[i], nil
}
