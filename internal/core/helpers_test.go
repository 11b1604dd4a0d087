package core

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"fissler.com/cooker-assistant/internal/store"
)

// hashEmbedder is a deterministic bag-of-words embedder for tests.
type hashEmbedder struct {
	err error
}

func (e hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	vec := make([]float32, 64)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(word))
		vec[h.Sum32()%64]++
	}
	vec[63] += 0.01 // Keep every vector non-zero
	return vec, nil
}

// scriptedModel replays completions in order and records what it was sent.
type scriptedModel struct {
	mu           sync.Mutex
	completions  []Completion
	err          error
	instructions []string
	histories    [][]Message
}

func (m *scriptedModel) Complete(_ context.Context, instruction string, history []Message, _ []ToolSpec) (Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instructions = append(m.instructions, instruction)
	m.histories = append(m.histories, append([]Message(nil), history...))
	if m.err != nil {
		return nil, m.err
	}
	if len(m.completions) == 0 {
		return nil, errors.New("script exhausted")
	}
	next := m.completions[0]
	m.completions = m.completions[1:]
	return next, nil
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.histories)
}

// loopingModel requests a search forever.
type loopingModel struct{ calls int }

func (m *loopingModel) Complete(context.Context, string, []Message, []ToolSpec) (Completion, error) {
	m.calls++
	return ToolInvocation{Calls: []ToolCall{NewToolCall("call", string(ToolSearchManual), `{"query":"valve"}`)}}, nil
}

// blockingModel never answers; it returns only once ctx is done.
type blockingModel struct {
	mu   sync.Mutex
	done bool
}

func (m *blockingModel) Complete(ctx context.Context, _ string, _ []Message, _ []ToolSpec) (Completion, error) {
	select {
	case <-ctx.Done():
		m.mu.Lock()
		m.done = true
		m.mu.Unlock()
		return nil, ctx.Err()
	case <-time.After(5 * time.Second):
		return FinalAnswer{Text: "too late"}, nil
	}
}

func (m *blockingModel) cancelled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}

type fakeDirectory struct {
	profiles map[int64]*store.CustomerProfile
	err      error
	lookups  int
}

func (d *fakeDirectory) GetCustomerProfile(_ context.Context, userID int64) (*store.CustomerProfile, error) {
	d.lookups++
	if d.err != nil {
		return nil, d.err
	}
	return d.profiles[userID], nil
}

type fakeRegistrationStore struct {
	created   []*store.ProductRegistration
	customers []string
	err       error
}

func (s *fakeRegistrationStore) CreateProductRegistration(_ context.Context, reg *store.ProductRegistration) error {
	if s.err != nil {
		return s.err
	}
	reg.ID = int64(len(s.created) + 1)
	s.created = append(s.created, reg)
	return nil
}

func (s *fakeRegistrationStore) RegisterCustomer(_ context.Context, email, _, _ string, reg *store.ProductRegistration) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.customers = append(s.customers, email)
	reg.UserID = 7
	s.created = append(s.created, reg)
	return 7, nil
}

type fakeSearcher struct {
	queries []string
	reply   string
}

func (s *fakeSearcher) Search(_ context.Context, query string, _ SessionContext) string {
	s.queries = append(s.queries, query)
	return s.reply
}
