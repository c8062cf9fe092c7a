package reflex

import "github.com/CoReason-AI/coreason-signal/internal/model"

// Event is an instrument log event.
type Event = model.LogEvent

// Reflex is a decided or operator-triggered action.
type Reflex = model.AgentReflex

// SOP is a standard operating procedure document.
type SOP = model.SOPDocument

// Params holds reflex parameters.
type Params = model.Params

// Action names the action a reflex prescribes.
type Action = model.Action

// Level is an event severity.
type Level = model.Level

const (
	ActionRetry  = model.ActionRetry
	ActionPause  = model.ActionPause
	ActionAbort  = model.ActionAbort
	ActionNotify = model.ActionNotify
	ActionIgnore = model.ActionIgnore

	LevelDebug    = model.LevelDebug
	LevelInfo     = model.LevelInfo
	LevelWarning  = model.LevelWarning
	LevelError    = model.LevelError
	LevelCritical = model.LevelCritical
)

// String, Number and Bool build reflex parameter values.
var (
	String = model.String
	Number = model.Number
	Bool   = model.Bool
)
