package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"careerpilot/internal/models"
)

// scriptedProvider returns canned responses in order, repeating the last
// one when the script runs out.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     [][]models.ChatMessage
}

func (p *scriptedProvider) Complete(_ context.Context, messages []models.ChatMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, messages)
	if p.err != nil {
		return "", p.err
	}
	idx := len(p.calls) - 1
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	return p.responses[idx], nil
}

type memThreadStore struct {
	threads  map[string]*models.ThreadMemory
	failSave bool
}

func newMemThreadStore() *memThreadStore {
	return &memThreadStore{threads: make(map[string]*models.ThreadMemory)}
}

func (s *memThreadStore) GetThreadMemory(_ context.Context, threadID string) (*models.ThreadMemory, error) {
	t, ok := s.threads[threadID]
	if !ok {
		return nil, nil
	}
	copied := *t
	copied.Messages = append([]models.ChatMessage(nil), t.Messages...)
	return &copied, nil
}

func (s *memThreadStore) SaveThreadMemory(_ context.Context, thread *models.ThreadMemory) error {
	if s.failSave {
		return errors.New("store unreachable")
	}
	thread.UpdatedAt = time.Now()
	thread.ExpiresAt = thread.UpdatedAt.Add(models.ThreadTTL)
	copied := *thread
	copied.Messages = append([]models.ChatMessage(nil), thread.Messages...)
	s.threads[thread.ThreadID] = &copied
	return nil
}

func (s *memThreadStore) ResolveSessionThread(_ context.Context, sessionID string) (string, error) {
	return "thread-for-" + sessionID, nil
}

type memCheckpointStore struct {
	checkpoints []models.Checkpoint
	results     []models.TaskResult
}

func (s *memCheckpointStore) SaveCheckpoint(_ context.Context, cp *models.Checkpoint) error {
	cp.CreatedAt = time.Now()
	s.checkpoints = append(s.checkpoints, *cp)
	return nil
}

func (s *memCheckpointStore) LatestCheckpoint(_ context.Context, threadID string) (*models.Checkpoint, error) {
	var latest *models.Checkpoint
	for i := range s.checkpoints {
		if s.checkpoints[i].ThreadID != threadID {
			continue
		}
		if latest == nil || s.checkpoints[i].CreatedAt.After(latest.CreatedAt) {
			latest = &s.checkpoints[i]
		}
	}
	return latest, nil
}

func (s *memCheckpointStore) RecordTaskResult(_ context.Context, tr *models.TaskResult) {
	s.results = append(s.results, *tr)
}

// fakeTools answers a fixed observation for a fixed set of tool names.
type fakeTools struct {
	known       map[string]bool
	observation string
	inputs      []json.RawMessage
	names       []string
}

func (f *fakeTools) Has(name string) bool { return f.known[name] }

func (f *fakeTools) Execute(_ context.Context, name, _, _ string, input json.RawMessage) string {
	f.names = append(f.names, name)
	f.inputs = append(f.inputs, input)
	return f.observation
}

func newTestOrchestrator(provider Provider, threads ThreadStore, tools ToolExecutor) *Orchestrator {
	return NewOrchestrator(provider, threads, &memCheckpointStore{}, nil, tools, nil, 6, time.Second)
}

// TestProcessMessageTermination tests that a model demanding tools forever
// still terminates within the hop limit
func TestProcessMessageTermination(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		`{"tool": "search_jobs", "toolInput": {"query": "anything"}}`,
	}}
	tools := &fakeTools{known: map[string]bool{ToolSearchJobs: true}, observation: "some jobs"}
	store := newMemThreadStore()
	o := newTestOrchestrator(provider, store, tools)

	answer, err := o.ProcessMessage(context.Background(), "t-1", "u-1", "find me a job")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if answer != answerOutOfSteps {
		t.Errorf("Expected the out-of-steps answer, got %q", answer)
	}
	if len(provider.calls) != 6 {
		t.Errorf("Expected exactly 6 agent steps, got %d", len(provider.calls))
	}
}

// TestProcessMessageFailSoftParsing tests the fallback paths for
// unusable decisions
func TestProcessMessageFailSoftParsing(t *testing.T) {
	tests := []struct {
		name     string
		response string
		expected string
	}{
		{
			name:     "Non-JSON reply becomes the answer",
			response: "I'd love to help you find a teaching job!",
			expected: "I'd love to help you find a teaching job!",
		},
		{
			name:     "JSON without a tool field becomes the answer",
			response: `{"message": "hello"}`,
			expected: `{"message": "hello"}`,
		},
		{
			name:     "Unknown tool falls back to raw text",
			response: `{"tool": "send_rocket", "toolInput": {"to": "moon"}}`,
			expected: `{"tool": "send_rocket", "toolInput": {"to": "moon"}}`,
		},
		{
			name:     "Tool without input gets the apology",
			response: `{"tool": "search_jobs"}`,
			expected: answerMissingInput,
		},
		{
			name:     "Explicit null input gets the apology",
			response: `{"tool": "search_jobs", "toolInput": null}`,
			expected: answerMissingInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &scriptedProvider{responses: []string{tt.response}}
			tools := &fakeTools{known: map[string]bool{ToolSearchJobs: true}}
			o := newTestOrchestrator(provider, newMemThreadStore(), tools)

			answer, err := o.ProcessMessage(context.Background(), "t-1", "", "hi")
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if answer != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, answer)
			}
			if len(tools.names) != 0 {
				t.Errorf("No tool should have run, got %v", tools.names)
			}
		})
	}
}

// TestProcessMessageFinalAnswer tests the terminal transition
func TestProcessMessageFinalAnswer(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		`{"tool": "final_answer", "toolInput": {"answer": "You should apply to Acme."}}`,
	}}
	o := newTestOrchestrator(provider, newMemThreadStore(), &fakeTools{known: map[string]bool{}})

	answer, err := o.ProcessMessage(context.Background(), "t-1", "u-1", "where should I apply?")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if answer != "You should apply to Acme." {
		t.Errorf("Expected the final answer, got %q", answer)
	}
}

// TestProcessMessageToolHop tests one full agent-tool-agent cycle
func TestProcessMessageToolHop(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		`{"tool": "search_jobs", "toolInput": {"location": "Guwahati", "subject": "math"}}`,
		`{"tool": "final_answer", "toolInput": {"answer": "Found: Math Teacher at Riverside School"}}`,
	}}
	tools := &fakeTools{
		known:       map[string]bool{ToolSearchJobs: true},
		observation: "Found 1 matching job(s):\n1. Math Teacher at Riverside School (Guwahati)\n",
	}
	store := newMemThreadStore()
	o := newTestOrchestrator(provider, store, tools)

	answer, err := o.ProcessMessage(context.Background(), "t-1", "u-1", "Find math teacher jobs in Guwahati")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(answer, "Math Teacher") {
		t.Errorf("Expected the matching job title in the answer, got %q", answer)
	}

	if len(tools.inputs) != 1 {
		t.Fatalf("Expected one tool run, got %d", len(tools.inputs))
	}
	var input map[string]string
	if err := json.Unmarshal(tools.inputs[0], &input); err != nil {
		t.Fatalf("Tool input was not valid JSON: %v", err)
	}
	if input["location"] != "Guwahati" || input["subject"] != "math" {
		t.Errorf("Unexpected tool input: %v", input)
	}

	// The second agent step must see the observation
	secondPrompt := provider.calls[1]
	found := false
	for _, msg := range secondPrompt {
		if strings.Contains(msg.Content, "Riverside School") {
			found = true
		}
	}
	if !found {
		t.Error("Observation was not fed back into the next agent step")
	}
}

// TestProcessMessageAppendsExactlyTwoMessages tests the per-turn message
// contract regardless of internal hops
func TestProcessMessageAppendsExactlyTwoMessages(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		`{"tool": "search_jobs", "toolInput": {"query": "x"}}`,
		`{"tool": "search_jobs", "toolInput": {"query": "y"}}`,
		`{"tool": "final_answer", "toolInput": {"answer": "done"}}`,
	}}
	tools := &fakeTools{known: map[string]bool{ToolSearchJobs: true}, observation: "obs"}
	store := newMemThreadStore()
	o := newTestOrchestrator(provider, store, tools)

	if _, err := o.ProcessMessage(context.Background(), "t-1", "u-1", "first"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	saved := store.threads["t-1"]
	if len(saved.Messages) != 2 {
		t.Fatalf("Expected 2 messages after first turn, got %d", len(saved.Messages))
	}
	if saved.Messages[0].Role != models.RoleUser || saved.Messages[1].Role != models.RoleAssistant {
		t.Errorf("Unexpected roles: %s, %s", saved.Messages[0].Role, saved.Messages[1].Role)
	}

	provider.calls = nil
	if _, err := o.ProcessMessage(context.Background(), "t-1", "u-1", "second"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	saved = store.threads["t-1"]
	if len(saved.Messages) != 4 {
		t.Errorf("Expected 4 messages after second turn, got %d", len(saved.Messages))
	}
}

// TestProcessMessagePersistenceFailure tests that the answer survives a
// failed save while the error still propagates
func TestProcessMessagePersistenceFailure(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		`{"tool": "final_answer", "toolInput": {"answer": "remembered or not, here it is"}}`,
	}}
	store := newMemThreadStore()
	store.failSave = true
	o := newTestOrchestrator(provider, store, &fakeTools{known: map[string]bool{}})

	answer, err := o.ProcessMessage(context.Background(), "t-1", "u-1", "hello")
	if err == nil {
		t.Fatal("Expected a persistence error")
	}
	if answer != "remembered or not, here it is" {
		t.Errorf("The answer must still be returned on save failure, got %q", answer)
	}
}

// TestProcessMessageProviderFailure tests the fail-soft path for an
// unreachable model
func TestProcessMessageProviderFailure(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("connection refused")}
	o := newTestOrchestrator(provider, newMemThreadStore(), &fakeTools{known: map[string]bool{}})

	answer, err := o.ProcessMessage(context.Background(), "t-1", "", "hi")
	if err != nil {
		t.Fatalf("Provider failures must not propagate as errors, got %v", err)
	}
	if answer != answerProviderDown {
		t.Errorf("Expected the generic provider-down answer, got %q", answer)
	}
}

// TestParseDecision tests decision extraction in isolation
func TestParseDecision(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantOK   bool
		wantTool string
	}{
		{name: "Valid decision", raw: `{"tool": "search_jobs", "toolInput": {}}`, wantOK: true, wantTool: "search_jobs"},
		{name: "Fenced decision", raw: "```json\n{\"tool\": \"final_answer\", \"toolInput\": {\"answer\": \"hi\"}}\n```", wantOK: true, wantTool: "final_answer"},
		{name: "No JSON", raw: "hello there", wantOK: false},
		{name: "Missing tool", raw: `{"toolInput": {}}`, wantOK: false},
		{name: "Malformed JSON", raw: `{"tool": `, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, ok := parseDecision(tt.raw)
			if ok != tt.wantOK {
				t.Fatalf("parseDecision ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && decision.Tool != tt.wantTool {
				t.Errorf("Expected tool %q, got %q", tt.wantTool, decision.Tool)
			}
		})
	}
}

// TestFinalAnswerText tests answer extraction with fallback
func TestFinalAnswerText(t *testing.T) {
	raw := `{"tool": "final_answer", "toolInput": {"answer": "hi"}}`
	if got := finalAnswerText(json.RawMessage(`{"answer": "hi"}`), raw); got != "hi" {
		t.Errorf("Expected extracted answer, got %q", got)
	}
	if got := finalAnswerText(json.RawMessage(`{}`), "raw fallback"); got != "raw fallback" {
		t.Errorf("Expected raw fallback, got %q", got)
	}
	if got := finalAnswerText(nil, "raw fallback"); got != "raw fallback" {
		t.Errorf("Expected raw fallback for nil input, got %q", got)
	}
}

// TestConcurrentTurnsSameThread tests that parallel calls on one thread
// do not lose message appends
func TestConcurrentTurnsSameThread(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		`{"tool": "final_answer", "toolInput": {"answer": "ok"}}`,
	}}
	store := newMemThreadStore()
	o := newTestOrchestrator(provider, store, &fakeTools{known: map[string]bool{}})

	const turns = 8
	done := make(chan error, turns)
	for i := 0; i < turns; i++ {
		go func(n int) {
			_, err := o.ProcessMessage(context.Background(), "t-1", "u-1", fmt.Sprintf("msg-%d", n))
			done <- err
		}(i)
	}
	for i := 0; i < turns; i++ {
		if err := <-done; err != nil {
			t.Fatalf("Turn failed: %v", err)
		}
	}

	saved := store.threads["t-1"]
	if len(saved.Messages) != turns*2 {
		t.Errorf("Expected %d messages, got %d (lost appends)", turns*2, len(saved.Messages))
	}
}
