// Package config loads and validates the engine's persisted configuration:
// process settings, IVR flow graphs, queue definitions and agent skill
// mappings. Validation failures are fatal at load time; the engine never
// serves traffic on a malformed configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigError marks a malformed configuration document. It is returned at
// load time only.
type ConfigError struct {
	Section string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Section, e.Reason)
}

func errf(section, format string, args ...any) *ConfigError {
	return &ConfigError{Section: section, Reason: fmt.Sprintf(format, args...)}
}

// Settings are the process-level knobs. All timeouts are whole seconds.
type Settings struct {
	SIP struct {
		Protocol   string `yaml:"protocol"`
		ListenAddr string `yaml:"listen_address"`
		Port       int    `yaml:"port"`
		Gateway    string `yaml:"gateway"`
		PromptDir  string `yaml:"prompt_dir"`
	} `yaml:"sip"`

	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`

	MQTT struct {
		Broker      string `yaml:"broker"`
		ClientID    string `yaml:"client_id"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`

	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`

	Routing struct {
		MaxNodeVisits   int    `yaml:"max_node_visits"`
		RingTimeout     int    `yaml:"ring_timeout"`
		NoAnswerPenalty int    `yaml:"no_answer_penalty"`
		PredictiveHold  int    `yaml:"predictive_hold"`
		DefaultFlow     string `yaml:"default_flow"`
	} `yaml:"routing"`

	NLP struct {
		Endpoint string `yaml:"endpoint"`
		Timeout  int    `yaml:"timeout"`
		Model    string `yaml:"model"`
	} `yaml:"nlp"`
}

func (s *Settings) RingTimeout() time.Duration {
	return time.Duration(s.Routing.RingTimeout) * time.Second
}

func (s *Settings) NoAnswerPenalty() time.Duration {
	return time.Duration(s.Routing.NoAnswerPenalty) * time.Second
}

func (s *Settings) PredictiveHold() time.Duration {
	return time.Duration(s.Routing.PredictiveHold) * time.Second
}

func (s *Settings) NLPTimeout() time.Duration {
	return time.Duration(s.NLP.Timeout) * time.Second
}

// LoadSettings reads the process settings document, applying defaults for
// everything optional.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}

	s := &Settings{}
	s.SIP.Protocol = "udp"
	s.SIP.ListenAddr = "127.0.0.1"
	s.SIP.Port = 5060
	s.SIP.PromptDir = "./prompts"
	s.HTTP.Addr = ":8080"
	s.MQTT.ClientID = "routing-engine"
	s.MQTT.TopicPrefix = "acd"
	s.Store.Path = "./data/acd.db"
	s.Routing.MaxNodeVisits = 64
	s.Routing.RingTimeout = 20
	s.Routing.NoAnswerPenalty = 30
	s.Routing.PredictiveHold = 2
	s.NLP.Timeout = 5

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing settings: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) validate() error {
	if s.SIP.Port < 1 || s.SIP.Port > 65535 {
		return errf("settings", "sip.port must be between 1 and 65535, got %d", s.SIP.Port)
	}
	if s.Routing.MaxNodeVisits < 1 {
		return errf("settings", "routing.max_node_visits must be positive")
	}
	if s.Routing.RingTimeout < 1 {
		return errf("settings", "routing.ring_timeout must be positive")
	}
	if s.Routing.DefaultFlow == "" {
		return errf("settings", "routing.default_flow is required")
	}
	return nil
}
