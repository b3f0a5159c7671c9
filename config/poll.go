package config

import "time"

// PollConfig configures the in-process polling loop that advances
// Wait/Retry/Invoke/Callback operations while suspension is blocked by
// other active activities.
type PollConfig struct {
	// InitialDelay before the first poll.
	InitialDelay time.Duration `json:"initial_delay"`

	// Period between subsequent polls.
	Period time.Duration `json:"period"`
}

// DefaultPollConfig returns a 100ms initial delay and a 200ms steady-state
// poll period.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		InitialDelay: 100 * time.Millisecond,
		Period:       200 * time.Millisecond,
	}
}

func (c *PollConfig) Merge(source *PollConfig) {
	if source.InitialDelay > 0 {
		c.InitialDelay = source.InitialDelay
	}
	if source.Period > 0 {
		c.Period = source.Period
	}
}
