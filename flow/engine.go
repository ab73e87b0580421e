// Package flow evaluates IVR flow graphs. Nodes live in an arena addressed
// by identifier, so cyclic graphs (reprompt loops) carry no ownership
// cycles. The engine is stateless across calls: every evaluation receives
// the configuration snapshot the session was created with.
package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/Reverse-Call-Center/routing-engine/config"
	"github.com/Reverse-Call-Center/routing-engine/types"
)

// Clock provides the current time. Defaults to time.Now; override in tests.
type Clock func() time.Time

// Decider resolves an http-call or intelligent-dialogue node against the
// external decision collaborator. A timeout or error routes the session
// down the node's fallback edge, never kills it.
type Decider interface {
	Decide(ctx context.Context, sessionCtx map[string]string) (value string, confidence float64, err error)
}

// Lookup answers route-select database lookups keyed by caller and called
// numbers. Deterministic for identical inputs.
type Lookup interface {
	RouteValue(ctx context.Context, caller, called string) (string, error)
}

const (
	defaultMenuTimeout    = 5 * time.Second
	defaultCollectTimeout = 10 * time.Second
	defaultCollectDigits  = 16
)

type Engine struct {
	clock   Clock
	decider Decider
	lookup  Lookup
	logger  *slog.Logger
}

type Option func(*Engine)

func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func NewEngine(decider Decider, lookup Lookup, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		clock:   time.Now,
		decider: decider,
		lookup:  lookup,
		logger:  logger.With("subsystem", "flow"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs one node for the session and returns the resulting action.
// Nodes that need caller input return an ActionCollect or ActionPlay; the
// coordinator gathers the input (or lets the timeout fire) and feeds it
// back through Resolve.
func (e *Engine) Evaluate(ctx context.Context, sess *types.CallSession, snap *config.Snapshot, flowName, nodeID string) types.Action {
	f, n, ok := lookupNode(snap, flowName, nodeID)
	if !ok {
		e.logger.Error("unknown flow node", "flow", flowName, "node", nodeID)
		return types.Hangup("configuration")
	}

	switch n.Type {
	case config.NodeMenu:
		return types.Action{
			Kind:      types.ActionCollect,
			Prompt:    n.Prompt,
			MaxDigits: 1,
			Timeout:   nodeTimeout(n, defaultMenuTimeout),
		}

	case config.NodeCollect:
		maxDigits := n.MaxDigits
		if maxDigits <= 0 {
			maxDigits = defaultCollectDigits
		}
		terminator := n.Terminator
		if terminator == "" {
			terminator = "#"
		}
		return types.Action{
			Kind:       types.ActionCollect,
			Prompt:     n.Prompt,
			MaxDigits:  maxDigits,
			Terminator: terminator,
			Timeout:    nodeTimeout(n, defaultCollectTimeout),
			VarName:    n.Var,
		}

	case config.NodeBroadcast:
		return types.Action{Kind: types.ActionPlay, Prompt: n.Prompt}

	case config.NodeTimeBranch:
		return e.evalTimeBranch(f, n, snap.Flows.Holidays)

	case config.NodeHTTPCall, config.NodeIntelligent:
		return e.evalDecision(ctx, sess, f, n)

	case config.NodeRouteSelect:
		return e.evalRouteSelect(ctx, sess, f, n)

	case config.NodeAssign:
		sess.SetVar(n.Var, expand(n.Value, sess))
		return e.singleEdge(f, n)

	case config.NodeConditional:
		result := "false"
		if evalExpr(n.Expr, sess) {
			result = "true"
		}
		return e.matchEdges(f, n, result)

	case config.NodeHangup:
		reason := n.Reason
		if reason == "" {
			reason = "normal"
		}
		return types.Hangup(reason)

	case config.NodeEnd:
		return types.Hangup("completed")
	}

	e.logger.Error("unhandled node type", "flow", flowName, "node", nodeID, "type", n.Type)
	return e.fallback(f)
}

// Resolve finishes a node whose evaluation awaited caller input. An empty
// input means the wait timed out.
func (e *Engine) Resolve(sess *types.CallSession, snap *config.Snapshot, flowName, nodeID, input string) types.Action {
	f, n, ok := lookupNode(snap, flowName, nodeID)
	if !ok {
		return types.Hangup("configuration")
	}

	switch n.Type {
	case config.NodeMenu:
		return e.matchEdges(f, n, input)
	case config.NodeCollect:
		sess.SetVar(n.Var, input)
		return e.singleEdge(f, n)
	case config.NodeBroadcast:
		return e.singleEdge(f, n)
	}
	return e.fallback(f)
}

func (e *Engine) evalTimeBranch(f *config.Flow, n *config.Node, holidays []string) types.Action {
	now := e.clock()
	for _, edge := range n.Edges {
		if edge.Window == nil {
			continue
		}
		if windowMatches(edge.Window, now, holidays) {
			return edgeAction(edge)
		}
	}
	return e.defaultEdge(f, n)
}

func (e *Engine) evalDecision(ctx context.Context, sess *types.CallSession, f *config.Flow, n *config.Node) types.Action {
	sctx := sess.Vars()
	sctx["session_id"] = sess.ID
	sctx["node"] = n.ID
	if n.URL != "" {
		sctx["url"] = n.URL
	}

	dctx := ctx
	if t := nodeTimeout(n, 0); t > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	value, confidence, err := e.decider.Decide(dctx, sctx)
	if err != nil {
		e.logger.Warn("decision collaborator failed, taking fallback edge",
			"session", sess.ID, "node", n.ID, "error", err)
		return e.defaultEdge(f, n)
	}
	e.logger.Debug("decision result", "session", sess.ID, "node", n.ID,
		"value", value, "confidence", confidence)
	return e.matchEdges(f, n, value)
}

func (e *Engine) evalRouteSelect(ctx context.Context, sess *types.CallSession, f *config.Flow, n *config.Node) types.Action {
	var value string
	switch n.By {
	case "caller":
		value = sess.Caller
	case "called":
		value = sess.Called
	case "lookup":
		v, err := e.lookup.RouteValue(ctx, sess.Caller, sess.Called)
		if err != nil {
			e.logger.Warn("route lookup failed, taking fallback edge",
				"session", sess.ID, "node", n.ID, "error", err)
			return e.defaultEdge(f, n)
		}
		value = v
	}
	return e.matchPrefixEdges(f, n, value)
}

// matchEdges applies guards in declaration order; first match wins, then
// the default edge, then the flow fallback.
func (e *Engine) matchEdges(f *config.Flow, n *config.Node, value string) types.Action {
	if value != "" {
		for _, edge := range n.Edges {
			if !edge.Default && edge.Match == value {
				return edgeAction(edge)
			}
		}
	}
	return e.defaultEdge(f, n)
}

// matchPrefixEdges is matchEdges with trailing-'*' prefix guards, used for
// number-based route selection.
func (e *Engine) matchPrefixEdges(f *config.Flow, n *config.Node, value string) types.Action {
	if value != "" {
		for _, edge := range n.Edges {
			if edge.Default {
				continue
			}
			if matchesPattern(edge.Match, value) {
				return edgeAction(edge)
			}
		}
	}
	return e.defaultEdge(f, n)
}

func matchesPattern(pattern, value string) bool {
	if pattern == value {
		return true
	}
	if len(pattern) > 0 && pattern[len(pattern)-1] == '*' {
		prefix := pattern[:len(pattern)-1]
		return len(value) >= len(prefix) && value[:len(prefix)] == prefix
	}
	return false
}

func (e *Engine) singleEdge(f *config.Flow, n *config.Node) types.Action {
	if len(n.Edges) == 1 {
		return edgeAction(n.Edges[0])
	}
	return e.fallback(f)
}

func (e *Engine) defaultEdge(f *config.Flow, n *config.Node) types.Action {
	for _, edge := range n.Edges {
		if edge.Default {
			return edgeAction(edge)
		}
	}
	return e.fallback(f)
}

// fallback is the flow's global failure route: the configured fallback
// target, or hangup when none is set. Callers never hear dead air.
func (e *Engine) fallback(f *config.Flow) types.Action {
	if f.Fallback != "" {
		if t, err := config.ParseTarget(f.Fallback); err == nil {
			return targetAction(t)
		}
	}
	return types.Hangup("failure")
}

func edgeAction(edge config.Edge) types.Action {
	t, err := config.ParseTarget(edge.To)
	if err != nil {
		// Unreachable after load-time validation.
		return types.Hangup("configuration")
	}
	return targetAction(t)
}

func targetAction(t config.Target) types.Action {
	switch t.Kind {
	case config.TargetQueue:
		return types.Enqueue(t.Queue, t.Priority)
	case config.TargetDial:
		return types.Transfer(t.Dest)
	default:
		return types.Advance(t.Node)
	}
}

func lookupNode(snap *config.Snapshot, flowName, nodeID string) (*config.Flow, *config.Node, bool) {
	f, ok := snap.Flow(flowName)
	if !ok {
		return nil, nil, false
	}
	n, ok := f.Nodes[nodeID]
	if !ok {
		return nil, nil, false
	}
	return f, n, true
}

func nodeTimeout(n *config.Node, fallback time.Duration) time.Duration {
	if n.Timeout > 0 {
		return time.Duration(n.Timeout) * time.Second
	}
	return fallback
}
