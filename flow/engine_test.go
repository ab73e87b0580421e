package flow_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Reverse-Call-Center/routing-engine/config"
	"github.com/Reverse-Call-Center/routing-engine/flow"
	"github.com/Reverse-Call-Center/routing-engine/types"
)

const engineFlows = `
holidays:
  - "2026-12-25"

flows:
  main:
    entry: hours
    fallback: queue:general
    nodes:
      hours:
        type: time-branch
        edges:
          - window: {holiday: true}
            to: closed
          - window:
              days: [mon, tue, wed, thu, fri]
              from: "09:00"
              to: "18:00"
            to: welcome
          - default: true
            to: closed
      welcome:
        type: menu
        prompt: welcome.wav
        timeout: 5
        edges:
          - match: "1"
            to: queue:sales:5
          - match: "9"
            to: dial:+18005550100
          - default: true
            to: welcome
      account:
        type: dtmf-collect
        prompt: enter_account.wav
        max_digits: 8
        var: account
        edges:
          - to: check
      check:
        type: conditional
        expr: account != ""
        edges:
          - match: "true"
            to: queue:sales:7
          - match: "false"
            to: welcome
      greet:
        type: assign
        var: greeting
        value: hello ${caller}
        edges:
          - to: welcome
      intent:
        type: http-call
        url: https://nlp.example.net/intent
        timeout: 2
        edges:
          - match: billing
            to: queue:sales:5
          - default: true
            to: welcome
      pick:
        type: route-select
        by: caller
        edges:
          - match: "+1555*"
            to: queue:sales:5
          - default: true
            to: welcome
      pick_db:
        type: route-select
        by: lookup
        edges:
          - match: vip
            to: queue:sales:9
          - default: true
            to: welcome
      closed:
        type: voice-broadcast
        prompt: closed.wav
        edges:
          - to: bye
      bye:
        type: hangup
        reason: closed
`

const engineQueues = `
queues:
  sales: {skill: sales}
  general: {}
`

type stubDecider struct {
	value string
	conf  float64
	err   error
}

func (d *stubDecider) Decide(context.Context, map[string]string) (string, float64, error) {
	return d.value, d.conf, d.err
}

type stubLookup struct {
	value string
	err   error
}

func (l *stubLookup) RouteValue(context.Context, string, string) (string, error) {
	return l.value, l.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func snapshot(t *testing.T) *config.Snapshot {
	t.Helper()
	flows, err := config.ParseFlows([]byte(engineFlows))
	if err != nil {
		t.Fatalf("flows: %v", err)
	}
	queues, err := config.ParseQueues([]byte(engineQueues))
	if err != nil {
		t.Fatalf("queues: %v", err)
	}
	reg, err := config.NewRegistry(flows, queues)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg.Current()
}

func testSession(t *testing.T, caller string) *types.CallSession {
	t.Helper()
	s := types.NewCallSession(context.Background(), "call-1", types.DirectionInbound, caller, "100")
	t.Cleanup(s.Cancel)
	return s
}

func fixedClock(value string) flow.Clock {
	ts, err := time.Parse("2006-01-02 15:04", value)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return ts }
}

func newEngine(decider flow.Decider, lookup flow.Lookup, opts ...flow.Option) *flow.Engine {
	if decider == nil {
		decider = &stubDecider{}
	}
	if lookup == nil {
		lookup = &stubLookup{}
	}
	return flow.NewEngine(decider, lookup, discard(), opts...)
}

func TestMenuEvaluateAndResolve(t *testing.T) {
	e := newEngine(nil, nil)
	snap := snapshot(t)
	sess := testSession(t, "+15551234")

	act := e.Evaluate(context.Background(), sess, snap, "main", "welcome")
	if act.Kind != types.ActionCollect || act.MaxDigits != 1 {
		t.Fatalf("menu evaluate = %+v, want single-digit collect", act)
	}
	if act.Timeout != 5*time.Second {
		t.Fatalf("menu timeout = %v", act.Timeout)
	}

	act = e.Resolve(sess, snap, "main", "welcome", "1")
	if act.Kind != types.ActionEnqueue || act.QueueName != "sales" || act.Priority != 5 {
		t.Fatalf("digit 1 = %+v, want enqueue sales prio 5", act)
	}

	act = e.Resolve(sess, snap, "main", "welcome", "9")
	if act.Kind != types.ActionTransfer || act.Destination != "+18005550100" {
		t.Fatalf("digit 9 = %+v, want transfer", act)
	}

	// Timeout (empty input) and unmapped digits reprompt via the default
	// edge.
	for _, input := range []string{"", "7"} {
		act = e.Resolve(sess, snap, "main", "welcome", input)
		if act.Kind != types.ActionAdvance || act.NextNode != "welcome" {
			t.Fatalf("input %q = %+v, want reprompt", input, act)
		}
	}
}

func TestTimeBranch(t *testing.T) {
	snap := snapshot(t)
	sess := testSession(t, "+15551234")

	cases := []struct {
		name  string
		clock string
		want  string
	}{
		{"weekday business hours", "2026-08-26 10:30", "welcome"},
		{"weekday evening", "2026-08-26 19:00", "closed"},
		{"weekend", "2026-08-29 10:30", "closed"},
		{"holiday beats weekday window", "2026-12-25 10:30", "closed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEngine(nil, nil, flow.WithClock(fixedClock(tc.clock)))
			act := e.Evaluate(context.Background(), sess, snap, "main", "hours")
			if act.Kind != types.ActionAdvance || act.NextNode != tc.want {
				t.Fatalf("got %+v, want advance to %s", act, tc.want)
			}
		})
	}
}

func TestCollectResolveStoresVariable(t *testing.T) {
	e := newEngine(nil, nil)
	snap := snapshot(t)
	sess := testSession(t, "+15551234")

	act := e.Evaluate(context.Background(), sess, snap, "main", "account")
	if act.Kind != types.ActionCollect || act.MaxDigits != 8 || act.Terminator != "#" {
		t.Fatalf("collect evaluate = %+v", act)
	}

	act = e.Resolve(sess, snap, "main", "account", "12345678")
	if act.Kind != types.ActionAdvance || act.NextNode != "check" {
		t.Fatalf("collect resolve = %+v", act)
	}
	if sess.Var("account") != "12345678" {
		t.Fatalf("account var = %q", sess.Var("account"))
	}
}

func TestConditional(t *testing.T) {
	e := newEngine(nil, nil)
	snap := snapshot(t)

	sess := testSession(t, "+15551234")
	sess.SetVar("account", "42")
	act := e.Evaluate(context.Background(), sess, snap, "main", "check")
	if act.Kind != types.ActionEnqueue || act.Priority != 7 {
		t.Fatalf("true branch = %+v", act)
	}

	empty := testSession(t, "+15551234")
	act = e.Evaluate(context.Background(), empty, snap, "main", "check")
	if act.Kind != types.ActionAdvance || act.NextNode != "welcome" {
		t.Fatalf("false branch = %+v", act)
	}
}

func TestAssignExpandsVariables(t *testing.T) {
	e := newEngine(nil, nil)
	snap := snapshot(t)
	sess := testSession(t, "+15551234")

	act := e.Evaluate(context.Background(), sess, snap, "main", "greet")
	if act.Kind != types.ActionAdvance || act.NextNode != "welcome" {
		t.Fatalf("assign = %+v", act)
	}
	if got := sess.Var("greeting"); got != "hello +15551234" {
		t.Fatalf("greeting = %q", got)
	}
}

func TestDecisionNode(t *testing.T) {
	snap := snapshot(t)
	sess := testSession(t, "+15551234")

	e := newEngine(&stubDecider{value: "billing", conf: 0.9}, nil)
	act := e.Evaluate(context.Background(), sess, snap, "main", "intent")
	if act.Kind != types.ActionEnqueue || act.QueueName != "sales" {
		t.Fatalf("matched decision = %+v", act)
	}

	// A failing collaborator routes down the default edge, never kills
	// the call.
	e = newEngine(&stubDecider{err: errors.New("upstream timeout")}, nil)
	act = e.Evaluate(context.Background(), sess, snap, "main", "intent")
	if act.Kind != types.ActionAdvance || act.NextNode != "welcome" {
		t.Fatalf("failed decision = %+v", act)
	}

	// So does an unmapped answer.
	e = newEngine(&stubDecider{value: "weather"}, nil)
	act = e.Evaluate(context.Background(), sess, snap, "main", "intent")
	if act.Kind != types.ActionAdvance || act.NextNode != "welcome" {
		t.Fatalf("unmapped decision = %+v", act)
	}
}

func TestRouteSelect(t *testing.T) {
	snap := snapshot(t)
	e := newEngine(nil, nil)

	act := e.Evaluate(context.Background(), testSession(t, "+15551234"), snap, "main", "pick")
	if act.Kind != types.ActionEnqueue || act.QueueName != "sales" {
		t.Fatalf("prefix match = %+v", act)
	}

	act = e.Evaluate(context.Background(), testSession(t, "+4930123"), snap, "main", "pick")
	if act.Kind != types.ActionAdvance || act.NextNode != "welcome" {
		t.Fatalf("prefix miss = %+v", act)
	}
}

func TestRouteSelectLookup(t *testing.T) {
	snap := snapshot(t)
	sess := testSession(t, "+15551234")

	e := newEngine(nil, &stubLookup{value: "vip"})
	act := e.Evaluate(context.Background(), sess, snap, "main", "pick_db")
	if act.Kind != types.ActionEnqueue || act.Priority != 9 {
		t.Fatalf("lookup hit = %+v", act)
	}

	e = newEngine(nil, &stubLookup{err: errors.New("db down")})
	act = e.Evaluate(context.Background(), sess, snap, "main", "pick_db")
	if act.Kind != types.ActionAdvance || act.NextNode != "welcome" {
		t.Fatalf("lookup failure = %+v", act)
	}
}

func TestUnknownNodeHangsUp(t *testing.T) {
	e := newEngine(nil, nil)
	snap := snapshot(t)
	sess := testSession(t, "+15551234")

	act := e.Evaluate(context.Background(), sess, snap, "main", "no-such-node")
	if act.Kind != types.ActionHangup {
		t.Fatalf("unknown node = %+v", act)
	}
}

func TestTerminalNodes(t *testing.T) {
	e := newEngine(nil, nil)
	snap := snapshot(t)
	sess := testSession(t, "+15551234")

	act := e.Evaluate(context.Background(), sess, snap, "main", "bye")
	if act.Kind != types.ActionHangup || act.Reason != "closed" {
		t.Fatalf("hangup node = %+v", act)
	}
}

// A flow document must survive serialization: marshalling the parsed graph
// and parsing it back yields identical routing decisions.
func TestFlowDocumentRoundTrip(t *testing.T) {
	original, err := config.ParseFlows([]byte(engineFlows))
	if err != nil {
		t.Fatalf("flows: %v", err)
	}
	data, err := yaml.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	reparsed, err := config.ParseFlows(data)
	if err != nil {
		t.Fatalf("re-parse: %v", err)
	}
	queues, err := config.ParseQueues([]byte(engineQueues))
	if err != nil {
		t.Fatalf("queues: %v", err)
	}
	regA, err := config.NewRegistry(original, queues)
	if err != nil {
		t.Fatal(err)
	}
	regB, err := config.NewRegistry(reparsed, queues)
	if err != nil {
		t.Fatal(err)
	}
	snapA, snapB := regA.Current(), regB.Current()

	// A business-hours Wednesday and a holiday exercise both time-branch
	// outcomes; the remaining nodes cover every action-producing type.
	for _, clockVal := range []string{"2026-08-26 10:00", "2026-12-25 10:00"} {
		e := newEngine(nil, nil, flow.WithClock(fixedClock(clockVal)))
		sa := testSession(t, "+15551234")
		sb := testSession(t, "+15551234")

		for _, node := range []string{"hours", "welcome", "account", "check", "pick", "closed", "bye"} {
			a := e.Evaluate(context.Background(), sa, snapA, "main", node)
			b := e.Evaluate(context.Background(), sb, snapB, "main", node)
			if !reflect.DeepEqual(a, b) {
				t.Fatalf("clock %s, evaluate %s: %+v vs %+v", clockVal, node, a, b)
			}
		}
		for _, input := range []string{"1", "9", "7", ""} {
			a := e.Resolve(sa, snapA, "main", "welcome", input)
			b := e.Resolve(sb, snapB, "main", "welcome", input)
			if !reflect.DeepEqual(a, b) {
				t.Fatalf("clock %s, resolve %q: %+v vs %+v", clockVal, input, a, b)
			}
		}
	}
}
