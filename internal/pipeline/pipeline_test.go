package pipeline

import (
	"context"
	"encoding/json"
)

// fakeGenerator implements Generator for tests.
type fakeGenerator struct {
	enabled  bool
	response string
	err      error
	calls    int
	prompts  []string
}

func (f *fakeGenerator) Enabled() bool { return f.enabled }

func (f *fakeGenerator) GenerateInto(_ context.Context, prompt string, out interface{}) error {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.response), out)
}
