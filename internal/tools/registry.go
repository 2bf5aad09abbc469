package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
)

// Invocation carries the per-turn context a tool may need.
type Invocation struct {
	ThreadID string
	UserID   string
	Input    json.RawMessage
}

// ExecuteFunc is the function signature for tool execution
type ExecuteFunc func(ctx context.Context, inv Invocation) (string, error)

// Tool is one named capability the assistant can invoke.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
	Execute     ExecuteFunc
}

// Registry manages all available tools
type Registry struct {
	tools map[string]*Tool
	mutex sync.RWMutex
}

// NewRegistry creates an empty tool registry
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a new tool to the registry
func (r *Registry) Register(tool *Tool) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if tool.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if tool.Execute == nil {
		return fmt.Errorf("tool %s must have an Execute function", tool.Name)
	}
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool %s is already registered", tool.Name)
	}

	r.tools[tool.Name] = tool
	return nil
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// List returns all registered tools.
func (r *Registry) List() []*Tool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	list := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		list = append(list, t)
	}
	return list
}

// Execute runs the named tool and always returns a usable observation.
// Tool failures never escape this boundary: any error becomes an
// apologetic observation string so the orchestration loop can continue.
func (r *Registry) Execute(ctx context.Context, name, threadID, userID string, input json.RawMessage) string {
	tool, ok := r.Get(name)
	if !ok {
		return "Sorry, that capability is not available right now."
	}

	observation, err := tool.Execute(ctx, Invocation{
		ThreadID: threadID,
		UserID:   userID,
		Input:    input,
	})
	if err != nil {
		log.Printf("🔧 [TOOLS] %s failed: %v", name, err)
		return "Sorry, I ran into a problem while working on that. Could you try again?"
	}

	return observation
}
