package types

import "fmt"

// Strategy is the closed set of agent selection policies. The matcher
// dispatches on it in one switch; the set is fixed, so no dynamic dispatch.
type Strategy int

const (
	StrategyLongestWaiting Strategy = iota
	StrategyLongestAvgWait
	StrategyFewestAnswered
	StrategyShortestAvgTalk
	StrategyRandom
)

var strategyNames = map[string]Strategy{
	"longest-waiting-agent": StrategyLongestWaiting,
	"longest-average-wait":  StrategyLongestAvgWait,
	"fewest-answered":       StrategyFewestAnswered,
	"shortest-average-talk": StrategyShortestAvgTalk,
	"random":                StrategyRandom,
}

func ParseStrategy(name string) (Strategy, error) {
	s, ok := strategyNames[name]
	if !ok {
		return 0, fmt.Errorf("unknown selection strategy %q", name)
	}
	return s, nil
}

func (s Strategy) String() string {
	for name, v := range strategyNames {
		if v == s {
			return name
		}
	}
	return "unknown"
}
