package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Node types. The set is closed; validation rejects anything else.
const (
	NodeMenu        = "menu"
	NodeTimeBranch  = "time-branch"
	NodeHTTPCall    = "http-call"
	NodeIntelligent = "intelligent-dialogue"
	NodeBroadcast   = "voice-broadcast"
	NodeRouteSelect = "route-select"
	NodeAssign      = "assign"
	NodeConditional = "conditional"
	NodeCollect     = "dtmf-collect"
	NodeHangup      = "hangup"
	NodeEnd         = "end"
)

var nodeTypes = map[string]bool{
	NodeMenu: true, NodeTimeBranch: true, NodeHTTPCall: true,
	NodeIntelligent: true, NodeBroadcast: true, NodeRouteSelect: true,
	NodeAssign: true, NodeConditional: true, NodeCollect: true,
	NodeHangup: true, NodeEnd: true,
}

// FlowDoc is the on-disk flow graph document.
type FlowDoc struct {
	Flows    map[string]*Flow `yaml:"flows"`
	Holidays []string         `yaml:"holidays"`
}

// Flow is one directed graph of IVR nodes. Cycles are allowed; nodes are
// addressed by stable identifiers, never by nesting.
type Flow struct {
	Name     string           `yaml:"-"`
	Entry    string           `yaml:"entry"`
	Fallback string           `yaml:"fallback"`
	Nodes    map[string]*Node `yaml:"nodes"`
}

// Node is one flow graph vertex. Which fields apply depends on Type.
// Timeout is whole seconds.
type Node struct {
	ID         string `yaml:"-"`
	Type       string `yaml:"type"`
	Prompt     string `yaml:"prompt"`
	Timeout    int    `yaml:"timeout"`
	MaxDigits  int    `yaml:"max_digits"`
	Terminator string `yaml:"terminator"`
	Var        string `yaml:"var"`
	Value      string `yaml:"value"`
	Expr       string `yaml:"expr"`
	URL        string `yaml:"url"`
	By         string `yaml:"by"`     // route-select: caller, called or lookup
	Reason     string `yaml:"reason"` // hangup
	Edges      []Edge `yaml:"edges"`
}

// Edge is one guarded outgoing transition, matched in declaration order.
type Edge struct {
	Match   string  `yaml:"match,omitempty"`
	Window  *Window `yaml:"window,omitempty"`
	Default bool    `yaml:"default,omitempty"`
	To      string  `yaml:"to"`
}

// Window guards a time-branch edge. From/To are "HH:MM" local times;
// Days are lowercase three-letter weekday names; Holiday matches the
// configured holiday calendar.
type Window struct {
	Days    []string `yaml:"days,omitempty"`
	From    string   `yaml:"from,omitempty"`
	To      string   `yaml:"to,omitempty"`
	Holiday bool     `yaml:"holiday,omitempty"`
}

// TargetKind discriminates what an edge's "to" reference points at.
type TargetKind int

const (
	TargetNode TargetKind = iota
	TargetQueue
	TargetDial
)

// Target is a parsed edge destination. Plain identifiers address nodes;
// "queue:<name>[:<priority>]" parks the call; "dial:<dest>" transfers to an
// external line or gateway.
type Target struct {
	Kind     TargetKind
	Node     string
	Queue    string
	Priority int
	Dest     string
}

// ParseTarget splits an edge destination reference.
func ParseTarget(to string) (Target, error) {
	switch {
	case strings.HasPrefix(to, "queue:"):
		rest := strings.TrimPrefix(to, "queue:")
		name, prioStr, hasPrio := strings.Cut(rest, ":")
		if name == "" {
			return Target{}, fmt.Errorf("empty queue name in %q", to)
		}
		prio := 5
		if hasPrio {
			p, err := strconv.Atoi(prioStr)
			if err != nil {
				return Target{}, fmt.Errorf("bad priority in %q: %w", to, err)
			}
			prio = p
		}
		return Target{Kind: TargetQueue, Queue: name, Priority: prio}, nil
	case strings.HasPrefix(to, "dial:"):
		dest := strings.TrimPrefix(to, "dial:")
		if dest == "" {
			return Target{}, fmt.Errorf("empty dial destination in %q", to)
		}
		return Target{Kind: TargetDial, Dest: dest}, nil
	case to == "":
		return Target{}, fmt.Errorf("empty edge target")
	default:
		return Target{Kind: TargetNode, Node: to}, nil
	}
}

// LoadFlows reads and validates the flow graph document.
func LoadFlows(path string) (*FlowDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading flows: %w", err)
	}
	return ParseFlows(data)
}

// ParseFlows decodes a flow document from bytes and validates it.
// Exposed separately so a serialized document can be proven to round-trip.
func ParseFlows(data []byte) (*FlowDoc, error) {
	doc := &FlowDoc{}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parsing flows: %w", err)
	}
	if len(doc.Flows) == 0 {
		return nil, errf("flows", "no flows defined")
	}
	for name, f := range doc.Flows {
		f.Name = name
		for id, n := range f.Nodes {
			n.ID = id
		}
		if err := f.validate(); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func (f *Flow) validate() error {
	section := "flow " + f.Name

	if len(f.Nodes) == 0 {
		return errf(section, "no nodes defined")
	}
	if _, ok := f.Nodes[f.Entry]; !ok {
		return errf(section, "entry node %q not found", f.Entry)
	}
	if f.Fallback != "" {
		if err := f.checkTarget(f.Fallback); err != nil {
			return errf(section, "fallback: %v", err)
		}
	}

	for id, n := range f.Nodes {
		if !nodeTypes[n.Type] {
			return errf(section, "node %q has unknown type %q", id, n.Type)
		}
		for i, e := range n.Edges {
			if err := f.checkTarget(e.To); err != nil {
				return errf(section, "node %q edge %d: %v", id, i, err)
			}
		}

		switch n.Type {
		case NodeMenu:
			if len(n.Edges) == 0 {
				return errf(section, "menu node %q has no edges", id)
			}
		case NodeTimeBranch:
			if !hasDefault(n.Edges) {
				return errf(section, "time-branch node %q requires a fallback edge", id)
			}
		case NodeConditional:
			if n.Expr == "" {
				return errf(section, "conditional node %q has no expression", id)
			}
			if !hasEdge(n.Edges, "true") || !hasEdge(n.Edges, "false") {
				return errf(section, "conditional node %q needs true and false edges", id)
			}
		case NodeCollect:
			if n.Var == "" {
				return errf(section, "dtmf-collect node %q needs a target variable", id)
			}
			if len(n.Edges) != 1 {
				return errf(section, "dtmf-collect node %q needs exactly one edge", id)
			}
		case NodeAssign:
			if n.Var == "" {
				return errf(section, "assign node %q needs a target variable", id)
			}
			if len(n.Edges) != 1 {
				return errf(section, "assign node %q needs exactly one edge", id)
			}
		case NodeHTTPCall:
			if n.URL == "" {
				return errf(section, "http-call node %q needs a url", id)
			}
		case NodeBroadcast:
			if n.Prompt == "" || len(n.Edges) != 1 {
				return errf(section, "voice-broadcast node %q needs a prompt and one edge", id)
			}
		case NodeRouteSelect:
			if n.By != "caller" && n.By != "called" && n.By != "lookup" {
				return errf(section, "route-select node %q: by must be caller, called or lookup", id)
			}
			if len(n.Edges) == 0 {
				return errf(section, "route-select node %q has no edges", id)
			}
		case NodeHangup, NodeEnd:
			if len(n.Edges) != 0 {
				return errf(section, "terminal node %q must not have edges", id)
			}
		}
	}
	return nil
}

func (f *Flow) checkTarget(to string) error {
	t, err := ParseTarget(to)
	if err != nil {
		return err
	}
	if t.Kind == TargetNode {
		if _, ok := f.Nodes[t.Node]; !ok {
			return fmt.Errorf("unknown node reference %q", t.Node)
		}
	}
	return nil
}

func hasDefault(edges []Edge) bool {
	for _, e := range edges {
		if e.Default {
			return true
		}
	}
	return false
}

func hasEdge(edges []Edge, match string) bool {
	for _, e := range edges {
		if e.Match == match {
			return true
		}
	}
	return false
}
