package hooks

import (
	"context"
	"fmt"
	"sync"
)

// HookType represents a lifecycle event of a capture run.
type HookType string

const (
	// HookRunStart fires once before the first test outcome.
	HookRunStart HookType = "run_start"

	// HookTestFailure fires after each captured failure has been delivered.
	HookTestFailure HookType = "test_failure"

	// HookRunEnd fires once after the last test outcome.
	HookRunEnd HookType = "run_end"
)

// HookHandler handles a lifecycle event.
type HookHandler func(ctx context.Context, data map[string]any) error

// HookManager dispatches lifecycle events to registered handlers.
type HookManager struct {
	mu       sync.RWMutex
	handlers map[HookType][]HookHandler
}

// NewHookManager creates an empty manager.
func NewHookManager() *HookManager {
	return &HookManager{handlers: make(map[HookType][]HookHandler)}
}

// RegisterHandler appends a handler for a hook type.
func (h *HookManager) RegisterHandler(hookType HookType, handler HookHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[hookType] = append(h.handlers[hookType], handler)
}

// Execute runs the handlers for hookType in registration order and stops at
// the first error.
func (h *HookManager) Execute(ctx context.Context, hookType HookType, data map[string]any) error {
	h.mu.RLock()
	handlers := h.handlers[hookType]
	h.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, data); err != nil {
			return fmt.Errorf("hook %s failed: %w", hookType, err)
		}
	}
	return nil
}
