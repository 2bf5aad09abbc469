package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"careerpilot/internal/models"
)

// AgentName tags checkpoints and task results written by this loop.
const AgentName = "career-assistant"

// Decision tool names. The model picks one of these per agent step.
const (
	ToolSearchJobs         = "search_jobs"
	ToolAnalyzeDocument    = "analyze_document"
	ToolInterviewQuestions = "generate_interview_questions"
	ToolFinalAnswer        = "final_answer"
)

// Forced answers for the fail-soft paths.
const (
	answerMissingInput = "Sorry, I lost track of what I was doing there. Could you rephrase your request?"
	answerOutOfSteps   = "I ran out of steps before I could finish that. Could you break the request into smaller parts?"
	answerProviderDown = "I'm having trouble thinking right now. Please try again in a moment."
)

var (
	turnsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assistant_turns_total",
		Help: "Completed orchestration turns",
	})
	hopsPerTurn = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "assistant_hops_per_turn",
		Help:    "Agent/tool hops taken per turn",
		Buckets: prometheus.LinearBuckets(0, 1, 8),
	})
	forcedFinals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assistant_forced_finals_total",
		Help: "Turns terminated by the hop limit",
	})
	parseFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assistant_decision_parse_failures_total",
		Help: "Agent decisions that fell back to the raw-text answer",
	})
	toolRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_tool_runs_total",
		Help: "Tool executions by tool name",
	}, []string{"tool"})
)

// AgentDecision is the structured action the model returns each agent step.
type AgentDecision struct {
	Tool      string          `json:"tool"`
	ToolInput json.RawMessage `json:"toolInput"`
}

type finalAnswerInput struct {
	Answer string `json:"answer"`
}

// ToolExecutor dispatches tool invocations. Execute never fails: tool
// errors come back as apologetic observation strings.
type ToolExecutor interface {
	Has(name string) bool
	Execute(ctx context.Context, name, threadID, userID string, input json.RawMessage) string
}

// Orchestrator runs the agent/tool loop for one conversation turn.
// It is the only writer of thread memory and checkpoints.
type Orchestrator struct {
	provider    Provider
	threads     ThreadStore
	checkpoints CheckpointStore
	contextB    *ContextBuilder
	tools       ToolExecutor
	events      EventPublisher
	maxHops     int
	toolTimeout time.Duration

	threadLocks sync.Map // threadID -> *sync.Mutex
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(provider Provider, threads ThreadStore, checkpoints CheckpointStore, contextBuilder *ContextBuilder, tools ToolExecutor, events EventPublisher, maxHops int, toolTimeout time.Duration) *Orchestrator {
	if maxHops <= 0 {
		maxHops = 6
	}
	if toolTimeout <= 0 {
		toolTimeout = 30 * time.Second
	}
	return &Orchestrator{
		provider:    provider,
		threads:     threads,
		checkpoints: checkpoints,
		contextB:    contextBuilder,
		tools:       tools,
		events:      events,
		maxHops:     maxHops,
		toolTimeout: toolTimeout,
	}
}

// ProcessMessage runs one conversation turn: load thread, loop agent and
// tool steps until a final answer, persist the extended thread.
//
// The thread gains exactly one user and one assistant message per call
// regardless of hops. When the final save fails the answer is still
// returned alongside the error; the caller decides whether to retry the
// save, but must know the conversation may not have been remembered.
func (o *Orchestrator) ProcessMessage(ctx context.Context, threadID, userID, utterance string) (string, error) {
	// Serialize turns per thread so concurrent calls cannot lose each
	// other's message appends.
	lock := o.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	thread, err := o.threads.GetThreadMemory(ctx, threadID)
	if err != nil {
		return "", fmt.Errorf("failed to load thread: %w", err)
	}
	if thread == nil {
		thread = &models.ThreadMemory{ThreadID: threadID, UserID: userID}
	}
	if thread.UserID == "" && userID != "" {
		thread.UserID = userID
	}

	o.noteInterruptedRun(ctx, thread)

	userContext := ""
	if o.contextB != nil {
		userContext = o.contextB.BuildUserContext(ctx, thread.UserID)
	}

	thread.Messages = append(thread.Messages, models.ChatMessage{
		Role:    models.RoleUser,
		Content: utterance,
	})

	answer := o.runLoop(ctx, thread, userContext)

	thread.Messages = append(thread.Messages, models.ChatMessage{
		Role:    models.RoleAssistant,
		Content: answer,
	})
	thread.LastAgent = AgentName

	turnsTotal.Inc()

	if err := o.threads.SaveThreadMemory(ctx, thread); err != nil {
		log.Printf("🚨 [ORCHESTRATOR] Failed to persist thread %s, conversation may be lost: %v", threadID, err)
		if o.events != nil {
			o.events.Publish("memory_write_failed", map[string]interface{}{
				"thread_id": threadID,
				"kind":      "thread_memory",
				"error":     err.Error(),
			})
		}
		return answer, fmt.Errorf("failed to persist thread %s: %w", threadID, err)
	}

	return answer, nil
}

// runLoop drives AGENT and TOOL steps until a final answer. Every exit
// path produces a usable answer string; nothing propagates as an error.
func (o *Orchestrator) runLoop(ctx context.Context, thread *models.ThreadMemory, userContext string) string {
	observation := ""
	observationTool := ""

	for hop := 0; hop < o.maxHops; hop++ {
		prompt := o.buildPrompt(thread, userContext, observation, observationTool)

		raw, err := o.provider.Complete(ctx, prompt)
		if err != nil {
			log.Printf("⚠️ [ORCHESTRATOR] Provider failed on hop %d: %v", hop, err)
			hopsPerTurn.Observe(float64(hop))
			return answerProviderDown
		}

		decision, ok := parseDecision(raw)
		if !ok || (decision.Tool != ToolFinalAnswer && !o.tools.Has(decision.Tool)) {
			// Unparseable decision or unknown tool: the raw text is the
			// best answer we have.
			parseFailures.Inc()
			hopsPerTurn.Observe(float64(hop))
			return strings.TrimSpace(raw)
		}

		if decision.Tool == ToolFinalAnswer {
			hopsPerTurn.Observe(float64(hop))
			return finalAnswerText(decision.ToolInput, raw)
		}

		if len(decision.ToolInput) == 0 || string(decision.ToolInput) == "null" {
			// The model picked a tool but gave it nothing to work with.
			log.Printf("⚠️ [ORCHESTRATOR] %s chosen without input on hop %d", decision.Tool, hop)
			hopsPerTurn.Observe(float64(hop))
			return answerMissingInput
		}

		o.saveCheckpoint(ctx, thread.ThreadID, hop, decision.Tool)

		toolCtx, cancel := context.WithTimeout(ctx, o.toolTimeout)
		observation = o.tools.Execute(toolCtx, decision.Tool, thread.ThreadID, thread.UserID, decision.ToolInput)
		cancel()
		observationTool = decision.Tool
		toolRuns.WithLabelValues(decision.Tool).Inc()

		o.recordTaskResult(ctx, thread.ThreadID, decision.Tool, decision.ToolInput, observation)

		if o.contextB != nil && thread.UserID != "" {
			// Tools write long-term memory; the cached context is stale now.
			o.contextB.Invalidate(thread.UserID)
		}
	}

	log.Printf("⛔ [ORCHESTRATOR] Thread %s hit the hop limit (%d)", thread.ThreadID, o.maxHops)
	forcedFinals.Inc()
	hopsPerTurn.Observe(float64(o.maxHops))
	return answerOutOfSteps
}

// parseDecision extracts the tool decision from raw model output.
// ok is false when no decision with a tool name can be recovered.
func parseDecision(raw string) (AgentDecision, bool) {
	jsonStr := ExtractJSON(raw)
	if jsonStr == "" {
		return AgentDecision{}, false
	}
	var decision AgentDecision
	if err := json.Unmarshal([]byte(jsonStr), &decision); err != nil {
		return AgentDecision{}, false
	}
	if decision.Tool == "" {
		return AgentDecision{}, false
	}
	return decision, true
}

// finalAnswerText pulls the answer out of a final_answer input, falling
// back to the raw model text when the field is missing.
func finalAnswerText(input json.RawMessage, raw string) string {
	var final finalAnswerInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &final); err == nil && final.Answer != "" {
			return final.Answer
		}
	}
	return strings.TrimSpace(raw)
}

func (o *Orchestrator) buildPrompt(thread *models.ThreadMemory, userContext, observation, observationTool string) []models.ChatMessage {
	var sb strings.Builder
	sb.WriteString("You are a career assistant for a job portal. You help people find jobs, improve resumes, and prepare for interviews.\n\n")
	sb.WriteString("## How to respond\n")
	sb.WriteString("Reply with JSON only, choosing exactly one action:\n")
	sb.WriteString(`{"tool": "search_jobs", "toolInput": {"query": "...", "location": "...", "category": "...", "subject": "...", "tags": ["..."]}}` + "\n")
	sb.WriteString(`{"tool": "analyze_document", "toolInput": {"document_id": "...", "text": "..."}}` + "\n")
	sb.WriteString(`{"tool": "generate_interview_questions", "toolInput": {"job_title": "...", "company": "...", "count": 5}}` + "\n")
	sb.WriteString(`{"tool": "final_answer", "toolInput": {"answer": "your reply to the user"}}` + "\n")
	sb.WriteString("Use final_answer once you have what you need. Omit filters you don't know rather than guessing.\n")

	if userContext != "" {
		sb.WriteString("\n" + userContext)
	}

	messages := make([]models.ChatMessage, 0, len(thread.Messages)+2)
	messages = append(messages, models.ChatMessage{Role: models.RoleSystem, Content: sb.String()})
	messages = append(messages, thread.Messages...)

	if observation != "" {
		messages = append(messages, models.ChatMessage{
			Role:    models.RoleSystem,
			Name:    observationTool,
			Content: "Tool observation:\n" + observation,
		})
	}

	return messages
}

// noteInterruptedRun checks whether the last run crashed mid-loop: a
// checkpoint newer than the thread's last persisted write means a tool
// step started but its turn never finished. The fact is recorded in the
// thread metadata so the next answer can acknowledge it.
func (o *Orchestrator) noteInterruptedRun(ctx context.Context, thread *models.ThreadMemory) {
	if o.checkpoints == nil {
		return
	}
	cp, err := o.checkpoints.LatestCheckpoint(ctx, thread.ThreadID)
	if err != nil {
		log.Printf("⚠️ [ORCHESTRATOR] Checkpoint lookup failed for thread %s: %v", thread.ThreadID, err)
		return
	}
	if cp == nil || !cp.CreatedAt.After(thread.UpdatedAt) {
		return
	}

	log.Printf("🔁 [ORCHESTRATOR] Thread %s has an interrupted run at step %d (%s)", thread.ThreadID, cp.StepNumber, cp.Data["tool"])
	if thread.Metadata == nil {
		thread.Metadata = make(map[string]string)
	}
	thread.Metadata["interruptedStep"] = fmt.Sprintf("%d", cp.StepNumber)
	thread.Metadata["interruptedTool"] = cp.Data["tool"]
}

// saveCheckpoint records loop progress before a tool step. Recovery-only
// data; a failed write logs and the turn continues.
func (o *Orchestrator) saveCheckpoint(ctx context.Context, threadID string, hop int, tool string) {
	if o.checkpoints == nil {
		return
	}
	err := o.checkpoints.SaveCheckpoint(ctx, &models.Checkpoint{
		ThreadID:   threadID,
		AgentName:  AgentName,
		StepNumber: hop,
		Data:       map[string]string{"tool": tool},
	})
	if err != nil {
		log.Printf("⚠️ [ORCHESTRATOR] Checkpoint failed for thread %s hop %d: %v", threadID, hop, err)
	}
}

func (o *Orchestrator) recordTaskResult(ctx context.Context, threadID, tool string, input json.RawMessage, observation string) {
	if o.checkpoints == nil {
		return
	}
	o.checkpoints.RecordTaskResult(ctx, &models.TaskResult{
		ThreadID:   threadID,
		AgentName:  AgentName,
		Task:       tool + " " + string(input),
		Result:     observation,
		Confidence: 1.0,
		Metadata:   map[string]string{"tool": tool},
	})
}

func (o *Orchestrator) threadLock(threadID string) *sync.Mutex {
	lock, _ := o.threadLocks.LoadOrStore(threadID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}
