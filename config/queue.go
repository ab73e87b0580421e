package config

import (
	"fmt"
	"os"
	"time"

	"github.com/Reverse-Call-Center/routing-engine/types"
	"gopkg.in/yaml.v3"
)

// QueueDoc is the on-disk queue definition document.
type QueueDoc struct {
	Queues map[string]*Queue `yaml:"queues"`
	Agents []AgentDef        `yaml:"agents"`
}

// Queue defines one waiting queue. Time fields are whole seconds.
type Queue struct {
	Name           string `yaml:"-"`
	Strategy       string `yaml:"strategy"`
	Skill          string `yaml:"skill"`
	HoldMusic      string `yaml:"hold_music"`
	AnnounceEvery  int    `yaml:"announce_every"`
	AnnouncePrompt string `yaml:"announce_prompt"`
	ConnectWhisper string `yaml:"connect_whisper"`
	EscalateAfter  int    `yaml:"escalate_after"`
	EscalateTo     string `yaml:"escalate_to"`
	EscalateBoost  int    `yaml:"escalate_boost"`

	strategy types.Strategy
}

// SelectionStrategy returns the parsed strategy; valid after load.
func (q *Queue) SelectionStrategy() types.Strategy { return q.strategy }

func (q *Queue) EscalateThreshold() time.Duration {
	return time.Duration(q.EscalateAfter) * time.Second
}

// AgentDef maps a known agent to its skill groups.
type AgentDef struct {
	ID     string   `yaml:"id"`
	Name   string   `yaml:"name"`
	Skills []string `yaml:"skills"`
}

// LoadQueues reads and validates the queue definition document.
func LoadQueues(path string) (*QueueDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading queues: %w", err)
	}
	return ParseQueues(data)
}

// ParseQueues decodes a queue document from bytes and validates it.
func ParseQueues(data []byte) (*QueueDoc, error) {
	doc := &QueueDoc{}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parsing queues: %w", err)
	}
	if len(doc.Queues) == 0 {
		return nil, errf("queues", "no queues defined")
	}

	agentIDs := make(map[string]bool, len(doc.Agents))
	for _, a := range doc.Agents {
		if a.ID == "" {
			return nil, errf("queues", "agent with empty id")
		}
		if agentIDs[a.ID] {
			return nil, errf("queues", "duplicate agent id %q", a.ID)
		}
		agentIDs[a.ID] = true
	}

	for name, q := range doc.Queues {
		q.Name = name
		if q.Strategy == "" {
			q.Strategy = "longest-waiting-agent"
		}
		strat, err := types.ParseStrategy(q.Strategy)
		if err != nil {
			return nil, errf("queue "+name, "%v", err)
		}
		q.strategy = strat
		if q.EscalateAfter > 0 {
			if q.EscalateTo == "" {
				return nil, errf("queue "+name, "escalate_after set without escalate_to")
			}
			if _, ok := doc.Queues[q.EscalateTo]; !ok {
				return nil, errf("queue "+name, "escalation target %q not found", q.EscalateTo)
			}
		}
	}
	return doc, nil
}
