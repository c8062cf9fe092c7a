package engine

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/CoReason-AI/coreason-signal/internal/model"
)

// reflexNamespace seeds the name-based IDs of synthesized reflexes, so the
// same event and store always yield the same reflex.
var reflexNamespace = uuid.MustParse("6f1c1c52-3d0e-4f55-9d1c-6b1f0f3a5e21")

// decider maps one log event to at most one reflex using the top SOP match.
type decider struct {
	store      Store
	actionable map[model.Level]bool
}

func newDecider(store Store, levels []model.Level) *decider {
	actionable := make(map[model.Level]bool, len(levels))
	for _, l := range levels {
		actionable[l] = true
	}
	return &decider{store: store, actionable: actionable}
}

// prepare applies the input filters and returns the store query text.
func (d *decider) prepare(event model.LogEvent) (string, bool) {
	if !d.actionable[event.Level] {
		return "", false
	}
	query := strings.TrimSpace(event.Message)
	if query == "" {
		return "", false
	}
	return query, true
}

// lookup queries the store for the single best SOP and turns it into a
// reflex. Store errors are logged and yield no decision.
func (d *decider) lookup(event model.LogEvent, query string) *model.AgentReflex {
	sops, err := d.store.Query(query, 1)
	if err != nil {
		slog.Error("sop query failed", "event_id", event.ID, "error", err)
		return nil
	}
	if len(sops) == 0 {
		slog.Info("no relevant sop", "event_id", event.ID)
		return nil
	}

	best := sops[0]
	slog.Info("matched sop", "event_id", event.ID, "sop_id", best.ID, "title", best.Title)

	if best.AssociatedReflex != nil {
		r := best.AssociatedReflex.Clone()
		if strings.TrimSpace(r.Reasoning) == "" {
			r.Reasoning = fmt.Sprintf("Prescribed by SOP %s", best.ID)
		}
		return &r
	}

	slog.Info("sop has no associated reflex", "event_id", event.ID, "sop_id", best.ID)
	return &model.AgentReflex{
		ID:     uuid.NewSHA1(reflexNamespace, []byte("notify/"+event.ID+"/"+best.ID)).String(),
		Action: model.ActionNotify,
		Parameters: model.Params{
			"event_id": model.String(event.ID),
			"sop_id":   model.String(best.ID),
		},
		Reasoning: fmt.Sprintf("Matched SOP %s (%s) but it has no specific reflex defined; notifying operator.", best.ID, best.Title),
	}
}

// watchdogPause is the fail-safe reflex returned when no decision arrives
// before the deadline.
func watchdogPause(eventID string, timeout time.Duration) *model.AgentReflex {
	return &model.AgentReflex{
		ID:         uuid.NewSHA1(reflexNamespace, []byte("pause/"+eventID)).String(),
		Action:     model.ActionPause,
		Parameters: model.Params{"event_id": model.String(eventID)},
		Reasoning:  fmt.Sprintf("Watchdog Timeout > %dms: no decision before the deadline, pausing instrument.", timeout.Milliseconds()),
	}
}
