// Package router turns investigation requests into tool executions
// and evidence pins. Structured quick actions map directly to intents;
// free-form queries take the smart path, a bounded model call that
// selects an intent and parameters.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/moolen/causeway/internal/evidence"
	"github.com/moolen/causeway/internal/logging"
	"github.com/moolen/causeway/internal/models"
	"github.com/moolen/causeway/internal/provider"
	"github.com/moolen/causeway/internal/tools"
)

// SmartPathTimeout bounds the intent-selection model call.
const SmartPathTimeout = 15 * time.Second

// Sink persists admitted pins; the session manager implements it.
type Sink interface {
	Persist(pin models.EvidencePin) (nodeID string, admitted bool)
}

// quickActions maps structured action names to intents.
var quickActions = map[string]string{
	"pod_logs":       "fetch_pod_logs",
	"describe":       "describe_resource",
	"events":         "get_events",
	"pod_status":     "check_pod_status",
	"error_logs":     "search_logs",
	"traces":         "find_traces",
	"recent_commits": "list_recent_commits",
}

// quickActionDefaults carry fixed parameters an action implies.
var quickActionDefaults = map[string]tools.Params{
	"error_logs": {"text": "error"},
}

// Request is one investigation request from the transport.
type Request struct {
	QuickAction string       `json:"quick_action,omitempty"`
	Query       string       `json:"query,omitempty"`
	Params      tools.Params `json:"params,omitempty"`
	Since       string       `json:"since,omitempty"`
}

// Response carries the created pin and the raw tool outcome.
type Response struct {
	PinID     string            `json:"pin_id"`
	Result    models.ToolResult `json:"result"`
	Duplicate bool              `json:"duplicate,omitempty"`
}

// Router executes investigation requests for one session.
type Router struct {
	executor *tools.Executor
	llm      provider.Provider
	sink     Sink
	rctx     evidence.RouterContext
	logger   *logging.Logger
}

// New creates a router bound to one session's executor and pin sink.
func New(executor *tools.Executor, llm provider.Provider, sink Sink, rctx evidence.RouterContext) *Router {
	return &Router{
		executor: executor,
		llm:      llm,
		sink:     sink,
		rctx:     rctx,
		logger:   logging.GetLogger("router"),
	}
}

// Investigate resolves the request to an intent, executes it, and
// persists the resulting pin. The returned pin id identifies the new
// evidence even when the tool call itself failed.
func (r *Router) Investigate(ctx context.Context, req Request) (Response, error) {
	var (
		intent      string
		params      tools.Params
		triggeredBy models.TriggeredBy
		err         error
	)

	switch {
	case req.QuickAction != "":
		triggeredBy = models.TriggeredByQuickAction
		intent, params, err = r.resolveQuickAction(req)
	case req.Query != "":
		triggeredBy = models.TriggeredByUserChat
		intent, params, err = r.smartPath(ctx, req)
	default:
		return Response{}, fmt.Errorf("request needs a quick_action or a query")
	}
	if err != nil {
		return Response{}, err
	}

	r.applyContextDefaults(intent, params)
	if req.Since != "" {
		if _, ok := params["since_minutes"]; !ok {
			minutes, serr := SinceMinutes(req.Since, time.Now())
			if serr != nil {
				return Response{}, serr
			}
			params["since_minutes"] = minutes
		}
	}

	result := r.executor.Execute(ctx, intent, params)

	pin := evidence.NewPin(result, triggeredBy, r.rctx)
	pin.SourceAgent = "router"
	nodeID, admitted := r.sink.Persist(pin)
	if !admitted {
		r.logger.Debug("duplicate pin suppressed for intent %s", intent)
		return Response{PinID: nodeID, Result: result, Duplicate: true}, nil
	}
	return Response{PinID: pin.ID, Result: result}, nil
}

func (r *Router) resolveQuickAction(req Request) (string, tools.Params, error) {
	intent, ok := quickActions[req.QuickAction]
	if !ok {
		return "", nil, fmt.Errorf("unknown quick action: %s", req.QuickAction)
	}
	params := tools.Params{}
	for k, v := range quickActionDefaults[req.QuickAction] {
		params[k] = v
	}
	for k, v := range req.Params {
		params[k] = v
	}
	return intent, params, nil
}

// smartPathChoice is the strict JSON shape the model must return.
type smartPathChoice struct {
	Intent string         `json:"intent"`
	Params map[string]any `json:"params"`
}

func (r *Router) smartPath(ctx context.Context, req Request) (string, tools.Params, error) {
	ctx, cancel := context.WithTimeout(ctx, SmartPathTimeout)
	defer cancel()

	registry := r.executor.Registry()
	doc, err := json.Marshal(map[string]any{
		"query":     req.Query,
		"intents":   registry,
		"namespace": r.rctx.Namespace,
		"service":   r.rctx.Service,
	})
	if err != nil {
		return "", nil, fmt.Errorf("marshal smart path input: %w", err)
	}

	var choice smartPathChoice
	_, err = provider.ChatJSON(ctx, r.llm, smartPathPrompt, string(doc), &choice)
	if err != nil {
		return "", nil, fmt.Errorf("intent selection failed: %w", err)
	}

	known := false
	for _, schema := range registry {
		if schema.Name == choice.Intent {
			known = true
			break
		}
	}
	if !known {
		return "", nil, fmt.Errorf("model selected unknown intent: %s", choice.Intent)
	}

	params := tools.Params{}
	for k, v := range choice.Params {
		// The model may answer time windows in natural language.
		if k == "since" || k == "window" {
			if s, ok := v.(string); ok {
				if minutes, serr := SinceMinutes(s, time.Now()); serr == nil {
					params["since_minutes"] = minutes
				}
				continue
			}
		}
		params[k] = v
	}
	return choice.Intent, params, nil
}

// applyContextDefaults fills required parameters the request left out
// from the session's incident context.
func (r *Router) applyContextDefaults(intent string, params tools.Params) {
	var schema *tools.IntentSchema
	for _, s := range r.executor.Registry() {
		if s.Name == intent {
			s := s
			schema = &s
			break
		}
	}
	if schema == nil {
		return
	}
	for _, name := range schema.Required {
		if _, ok := params[name]; ok {
			continue
		}
		switch name {
		case "namespace":
			if r.rctx.Namespace != "" {
				params[name] = r.rctx.Namespace
			}
		case "service":
			if r.rctx.Service != "" {
				params[name] = r.rctx.Service
			}
		case "pod", "name":
			if r.rctx.ResourceName != "" {
				params[name] = r.rctx.ResourceName
			}
		}
	}
}

const smartPathPrompt = `You route a user's investigation question to one
diagnostic tool. You receive the question, the available intents with
their parameter schemas, and the session's namespace and service.

Pick exactly one intent and fill its parameters from the question and
the session context. Express time windows as a "since" string if the
question mentions one.

STRICT JSON only:

{"intent": "<name from the list>", "params": {}}`
