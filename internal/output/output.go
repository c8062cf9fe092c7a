// Package output defines actuator destinations for dispatched reflexes.
package output

import (
	"context"

	"github.com/CoReason-AI/coreason-signal/internal/model"
)

// Output is an actuator: a destination that carries out or records a
// dispatched reflex.
type Output interface {
	Write(ctx context.Context, reflex model.AgentReflex) error
	Close() error
}
