// Package bus carries typed request/reply and event traffic between the
// orchestrator, page extractors, the popup UI, and the web-app bridge.
package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/osintkit/deepscan/pkg/profile"
)

// Action names an inbound request. The set is closed; dispatching any other
// action yields a structured "Unknown action" failure.
type Action string

// Request actions.
const (
	ActionStartDeepScan  Action = "startDeepScan"
	ActionGetScanStatus  Action = "getScanStatus"
	ActionCancelScan     Action = "cancelScan"
	ActionGetAPIURL      Action = "getApiUrl"
	ActionSendToBackend  Action = "sendToBackend"
	ActionCheckAuth      Action = "checkAuthentication"
	ActionExtractSearch  Action = "extractSearchResults"
	ActionExtractProfile Action = "extractProfileData"
	ActionPerformSearch  Action = "performSearch"
)

// Request is one inbound message.
type Request struct {
	Action  Action          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is the ack-sized reply to a Request.
type Response struct {
	Success bool               `json:"success"`
	Error   string             `json:"error,omitempty"`
	ScanID  string             `json:"scanId,omitempty"`
	Status  profile.ScanStatus `json:"status,omitempty"`
	Scan    *profile.Scan      `json:"scan,omitempty"`
	URL     string             `json:"url,omitempty"`
	Data    any                `json:"data,omitempty"`
}

// OK returns a bare success reply.
func OK() Response { return Response{Success: true} }

// Fail returns a structured failure reply.
func Fail(msg string) Response { return Response{Success: false, Error: msg} }

// Handler serves one action.
type Handler func(ctx context.Context, payload json.RawMessage) Response

// Dispatcher routes requests to registered handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Action]Handler
	logger   *slog.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		handlers: make(map[Action]Handler),
		logger:   logger,
	}
}

// Handle registers the handler for an action, replacing any previous one.
func (d *Dispatcher) Handle(action Action, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[action] = h
}

// Dispatch routes one request. Unknown actions reply with a structured
// error; they never panic or propagate.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Response {
	d.mu.RLock()
	h, ok := d.handlers[req.Action]
	d.mu.RUnlock()
	if !ok {
		d.logger.WarnContext(ctx, "unknown action", "action", req.Action)
		return Fail("Unknown action")
	}
	return h(ctx, req.Payload)
}
