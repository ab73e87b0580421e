package config_test

import (
	"strings"
	"testing"

	"github.com/Reverse-Call-Center/routing-engine/config"
	"github.com/Reverse-Call-Center/routing-engine/types"
)

const validFlows = `
flows:
  main:
    entry: welcome
    fallback: queue:general
    nodes:
      welcome:
        type: menu
        prompt: welcome.wav
        edges:
          - match: "1"
            to: queue:sales:5
          - default: true
            to: bye
      bye:
        type: hangup
`

const validQueues = `
queues:
  sales:
    strategy: fewest-answered
    skill: sales
  general: {}
agents:
  - id: a1
    name: Alice
    skills: [sales]
`

func TestParseFlowsValid(t *testing.T) {
	doc, err := config.ParseFlows([]byte(validFlows))
	if err != nil {
		t.Fatalf("ParseFlows: %v", err)
	}
	f := doc.Flows["main"]
	if f.Entry != "welcome" {
		t.Fatalf("entry = %q", f.Entry)
	}
	if f.Nodes["welcome"].Edges[0].To != "queue:sales:5" {
		t.Fatalf("edge target = %q", f.Nodes["welcome"].Edges[0].To)
	}
}

func TestParseFlowsRejections(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "missing entry node",
			doc: `
flows:
  broken:
    entry: nowhere
    nodes:
      bye: {type: hangup}
`,
			want: "entry node",
		},
		{
			name: "unknown node type",
			doc: `
flows:
  broken:
    entry: x
    nodes:
      x: {type: teleport}
`,
			want: "unknown type",
		},
		{
			name: "time-branch without default",
			doc: `
flows:
  broken:
    entry: hours
    nodes:
      hours:
        type: time-branch
        edges:
          - window: {days: [mon]}
            to: bye
      bye: {type: hangup}
`,
			want: "fallback edge",
		},
		{
			name: "conditional missing false edge",
			doc: `
flows:
  broken:
    entry: cond
    nodes:
      cond:
        type: conditional
        expr: account != ""
        edges:
          - match: "true"
            to: bye
      bye: {type: hangup}
`,
			want: "true and false",
		},
		{
			name: "terminal node with edges",
			doc: `
flows:
  broken:
    entry: bye
    nodes:
      bye:
        type: hangup
        edges:
          - to: bye
`,
			want: "terminal",
		},
		{
			name: "dangling edge target",
			doc: `
flows:
  broken:
    entry: welcome
    nodes:
      welcome:
        type: menu
        edges:
          - match: "1"
            to: missing
`,
			want: "missing",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.ParseFlows([]byte(tc.doc))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q, want substring %q", err, tc.want)
			}
		})
	}
}

func TestParseTarget(t *testing.T) {
	cases := []struct {
		in   string
		kind config.TargetKind
	}{
		{"welcome", config.TargetNode},
		{"queue:sales", config.TargetQueue},
		{"queue:sales:9", config.TargetQueue},
		{"dial:+18005550100", config.TargetDial},
	}
	for _, tc := range cases {
		got, err := config.ParseTarget(tc.in)
		if err != nil {
			t.Fatalf("ParseTarget(%q): %v", tc.in, err)
		}
		if got.Kind != tc.kind {
			t.Errorf("ParseTarget(%q).Kind = %v, want %v", tc.in, got.Kind, tc.kind)
		}
	}

	q, _ := config.ParseTarget("queue:sales")
	if q.Priority != 5 {
		t.Errorf("default queue priority = %d, want 5", q.Priority)
	}
	q, _ = config.ParseTarget("queue:vip:9")
	if q.Priority != 9 {
		t.Errorf("explicit queue priority = %d, want 9", q.Priority)
	}

	for _, bad := range []string{"", "queue:", "dial:", "queue:sales:high"} {
		if _, err := config.ParseTarget(bad); err == nil {
			t.Errorf("ParseTarget(%q) accepted", bad)
		}
	}
}

func TestParseQueues(t *testing.T) {
	doc, err := config.ParseQueues([]byte(validQueues))
	if err != nil {
		t.Fatalf("ParseQueues: %v", err)
	}
	if got := doc.Queues["sales"].SelectionStrategy(); got != types.StrategyFewestAnswered {
		t.Fatalf("strategy = %v", got)
	}
	if got := doc.Queues["general"].SelectionStrategy(); got != types.StrategyLongestWaiting {
		t.Fatalf("default strategy = %v", got)
	}
}

func TestParseQueuesRejections(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "unknown strategy",
			doc:  "queues:\n  q: {strategy: coin-flip}\n",
			want: "unknown selection strategy",
		},
		{
			name: "escalation without target",
			doc:  "queues:\n  q: {escalate_after: 60}\n",
			want: "escalate_to",
		},
		{
			name: "escalation to missing queue",
			doc:  "queues:\n  q: {escalate_after: 60, escalate_to: nowhere}\n",
			want: "not found",
		},
		{
			name: "duplicate agent id",
			doc:  "queues:\n  q: {}\nagents:\n  - id: a\n  - id: a\n",
			want: "duplicate agent",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.ParseQueues([]byte(tc.doc))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %v, want substring %q", err, tc.want)
			}
		})
	}
}

func TestRegistryCrossValidation(t *testing.T) {
	flows, err := config.ParseFlows([]byte(validFlows))
	if err != nil {
		t.Fatal(err)
	}
	queues, err := config.ParseQueues([]byte(validQueues))
	if err != nil {
		t.Fatal(err)
	}

	reg, err := config.NewRegistry(flows, queues)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if _, ok := reg.Current().Flow("main"); !ok {
		t.Fatal("flow main missing from snapshot")
	}

	// A flow that parks calls in a queue the queue document does not
	// define must be rejected.
	orphan, err := config.ParseFlows([]byte(strings.ReplaceAll(validFlows, "queue:sales:5", "queue:ghost")))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := config.NewRegistry(orphan, queues); err == nil {
		t.Fatal("registry accepted flow referencing unknown queue")
	}
}

func TestRegistrySwapKeepsOldSnapshotAlive(t *testing.T) {
	flows, _ := config.ParseFlows([]byte(validFlows))
	queues, _ := config.ParseQueues([]byte(validQueues))
	reg, err := config.NewRegistry(flows, queues)
	if err != nil {
		t.Fatal(err)
	}

	old := reg.Current()
	flows2, _ := config.ParseFlows([]byte(validFlows))
	if err := reg.Swap(flows2, queues); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if reg.Current() == old {
		t.Fatal("snapshot not replaced")
	}
	if _, ok := old.Flow("main"); !ok {
		t.Fatal("old snapshot mutated by swap")
	}
}

func TestValidateDefaultFlow(t *testing.T) {
	flows, err := config.ParseFlows([]byte(validFlows))
	if err != nil {
		t.Fatal(err)
	}
	if err := config.ValidateDefaultFlow(flows, "main"); err != nil {
		t.Fatalf("known flow rejected: %v", err)
	}
	if err := config.ValidateDefaultFlow(flows, "nightshift"); err == nil {
		t.Fatal("unknown default flow accepted")
	}
}
