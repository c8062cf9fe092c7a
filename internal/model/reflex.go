package model

import (
	"errors"
	"strings"
	"time"
)

// Action names the autonomous action a reflex prescribes. The constants are
// the canonical actions; SOPs may prescribe device-specific names too.
type Action string

const (
	ActionRetry  Action = "RETRY"
	ActionPause  Action = "PAUSE"
	ActionAbort  Action = "ABORT"
	ActionNotify Action = "NOTIFY"
	ActionIgnore Action = "IGNORE"
)

// AgentReflex is the decision output: an action, its arguments, and the
// justification recorded for audit.
type AgentReflex struct {
	ID         string    `json:"id,omitempty" yaml:"id,omitempty"`
	Action     Action    `json:"action" yaml:"action"`
	Parameters Params    `json:"parameters" yaml:"parameters,omitempty"`
	Reasoning  string    `json:"reasoning" yaml:"reasoning"`
	Timestamp  time.Time `json:"timestamp,omitzero" yaml:"-"`
}

var (
	errEmptyAction    = errors.New("reflex action is empty")
	errEmptyReasoning = errors.New("reflex reasoning is empty")
)

// Validate checks the fields every executable reflex must carry.
func (r AgentReflex) Validate() error {
	if strings.TrimSpace(string(r.Action)) == "" {
		return errEmptyAction
	}
	if strings.TrimSpace(r.Reasoning) == "" {
		return errEmptyReasoning
	}
	return nil
}

// Clone returns a copy whose Parameters map is not shared with r.
func (r AgentReflex) Clone() AgentReflex {
	r.Parameters = r.Parameters.Clone()
	return r
}
