package analysis

import "context"

// Provider is the interface to whatever model generates the
// architecture review text.
type Provider interface {
	GenerateAnalysis(ctx context.Context, prompt string) (string, error)
	Name() string
}

// ProviderError carries enough detail to log without leaking provider
// internals to the client.
type ProviderError struct {
	Provider string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Provider + " error: " + e.Message + " (" + e.Err.Error() + ")"
	}
	return e.Provider + " error: " + e.Message
}

func (e *ProviderError) Unwrap() error { return e.Err }
