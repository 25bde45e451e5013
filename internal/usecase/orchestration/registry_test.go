package orchestration

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentic-rag/internal/domain"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry(testLogger(), nil)
	a := &stubAgent{name: "docsearch"}

	require.NoError(t, r.Register(a))

	got, err := r.Get("docsearch")
	require.NoError(t, err)
	assert.Equal(t, "docsearch", got.Name())
}

func TestRegistryHealthCheck(t *testing.T) {
	r := NewRegistry(testLogger(), nil)
	require.NoError(t, r.Register(&stubAgent{name: "good", score: 0.5}))
	require.NoError(t, r.Register(&stubAgent{name: "broken", scoreFn: func(string) (float64, error) {
		return 0, errors.New("index offline")
	}}))

	statuses := r.HealthCheck(context.Background())
	require.Len(t, statuses, 2)
	assert.True(t, statuses["good"].Healthy)
	assert.False(t, statuses["broken"].Healthy)
}

func TestRegistryHealthCheckIsolatesPanic(t *testing.T) {
	r := NewRegistry(testLogger(), nil)
	require.NoError(t, r.Register(&stubAgent{name: "wild", scoreFn: func(string) (float64, error) {
		panic("nil map write")
	}}))
	require.NoError(t, r.Register(&stubAgent{name: "good", score: 0.5}))

	statuses := r.HealthCheck(context.Background())
	require.Len(t, statuses, 2)
	assert.False(t, statuses["wild"].Healthy)
	assert.True(t, statuses["good"].Healthy)
}

func TestRegistryDuplicate(t *testing.T) {
	r := NewRegistry(testLogger(), nil)
	require.NoError(t, r.Register(&stubAgent{name: "docsearch"}))

	err := r.Register(&stubAgent{name: "docsearch"})
	assert.True(t, errors.Is(err, domain.ErrDuplicate))
	assert.Equal(t, domain.CodeAgentDuplicate, domain.ErrorCodeOf(err))
	assert.Equal(t, 1, r.Len())
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry(testLogger(), nil)
	require.NoError(t, r.Register(&stubAgent{name: "docsearch"}))

	require.NoError(t, r.Unregister("docsearch"))
	_, err := r.Get("docsearch")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	err = r.Unregister("docsearch")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRegistryListKeepsRegistrationOrder(t *testing.T) {
	r := NewRegistry(testLogger(), nil)
	for _, name := range []string{"charlie", "alpha", "bravo"} {
		require.NoError(t, r.Register(&stubAgent{name: name}))
	}

	var names []string
	for _, a := range r.List() {
		names = append(names, a.Name())
	}
	assert.Equal(t, []string{"charlie", "alpha", "bravo"}, names)

	require.NoError(t, r.Unregister("alpha"))
	names = names[:0]
	for _, a := range r.List() {
		names = append(names, a.Name())
	}
	assert.Equal(t, []string{"charlie", "bravo"}, names)
}

func TestRegistryGetByCapability(t *testing.T) {
	r := NewRegistry(testLogger(), nil)
	require.NoError(t, r.Register(&stubAgent{
		name: "docsearch",
		caps: []domain.Capability{domain.CapabilityDocumentSearch, domain.CapabilityAcademicAnalysis},
	}))
	require.NoError(t, r.Register(&stubAgent{
		name: "comparison",
		caps: []domain.Capability{domain.CapabilityComparisonAnalysis},
	}))

	docs := r.GetByCapability(domain.CapabilityDocumentSearch)
	require.Len(t, docs, 1)
	assert.Equal(t, "docsearch", docs[0].Name())

	assert.Empty(t, r.GetByCapability(domain.CapabilityLiteratureReview))
}

func TestRegistrySendMessage(t *testing.T) {
	r := NewRegistry(testLogger(), nil)
	require.NoError(t, r.Register(&stubAgent{name: "docsearch"}))
	require.NoError(t, r.Register(&stubAgent{name: "comparison"}))

	msg, err := r.SendMessage(context.Background(), domain.AgentMessage{
		Sender:    "docsearch",
		Recipient: "comparison",
		Content:   "found three papers",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.Timestamp.IsZero())

	inbox := r.MessagesFor("comparison")
	require.Len(t, inbox, 1)
	assert.Equal(t, "found three papers", inbox[0].Content)

	_, err = r.SendMessage(context.Background(), domain.AgentMessage{
		Sender:    "docsearch",
		Recipient: "ghost",
	})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRegistryBroadcastSkipsSender(t *testing.T) {
	r := NewRegistry(testLogger(), nil)
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, r.Register(&stubAgent{name: name}))
	}

	n := r.Broadcast(context.Background(), domain.AgentMessage{Sender: "a", Content: "hello"})
	assert.Equal(t, 2, n)
	assert.Empty(t, r.MessagesFor("a"))
	assert.Len(t, r.MessagesFor("b"), 1)
	assert.Len(t, r.MessagesFor("c"), 1)
}

func TestRegistryStats(t *testing.T) {
	r := NewRegistry(testLogger(), nil)
	require.NoError(t, r.Register(&stubAgent{
		name: "docsearch",
		caps: []domain.Capability{domain.CapabilityDocumentSearch},
	}))

	stats := r.Stats()
	assert.Equal(t, 1, stats["total_agents"])
	caps := stats["capabilities"].(map[string]int)
	assert.Equal(t, 1, caps["document_search"])
}
