package reasoning

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// MockProvider replays canned replies in order. Used by tests and by the
// offline probe mode, where no real model should be called.
type MockProvider struct {
	mu        sync.Mutex
	responses []string
	idx       int
	err       error
	calls     []MockCall
}

// MockCall records one prompt the mock received.
type MockCall struct {
	System string
	User   string
}

// NewMockProvider creates a mock that replays the given replies in order.
// Once exhausted it repeats the last reply.
func NewMockProvider(responses ...string) *MockProvider {
	return &MockProvider{responses: responses}
}

// NewFailingMockProvider creates a mock whose Generate always fails.
func NewFailingMockProvider(err error) *MockProvider {
	return &MockProvider{err: err}
}

// scenarioFile is the on-disk format for canned reply sequences.
type scenarioFile struct {
	Name      string   `yaml:"name"`
	Responses []string `yaml:"responses"`
}

// LoadScenario reads a YAML scenario of canned replies.
func LoadScenario(path string) (*MockProvider, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	var scenario scenarioFile
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("failed to parse scenario file: %w", err)
	}
	if len(scenario.Responses) == 0 {
		return nil, fmt.Errorf("scenario %q has no responses", scenario.Name)
	}
	return NewMockProvider(scenario.Responses...), nil
}

// Generate implements Provider.Generate.
func (m *MockProvider) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockCall{System: systemPrompt, User: userPrompt})
	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		return "", fmt.Errorf("mock provider has no responses")
	}
	resp := m.responses[m.idx]
	if m.idx < len(m.responses)-1 {
		m.idx++
	}
	return resp, nil
}

// Calls returns the prompts received so far.
func (m *MockProvider) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Name implements Provider.Name.
func (m *MockProvider) Name() string {
	return "mock"
}

// Model implements Provider.Model.
func (m *MockProvider) Model() string {
	return "mock"
}
