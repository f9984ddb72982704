package realtime

import (
	"context"

	"github.com/rs/zerolog"
)

// Notification is the payload pushed to clients over the "notification" event.
type Notification struct {
	Message string `json:"message"`
}

// Dispatcher delivers notifications to a user's registered connections.
type Dispatcher struct {
	registry *Registry
	logger   zerolog.Logger
}

// NewDispatcher returns a dispatcher bound to the registry.
func NewDispatcher(registry *Registry, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		logger:   logger,
	}
}

// Dispatch writes the notification to every connection of the user and
// reports how many writes succeeded and how many failed. A connection whose
// write fails is unbound and closed; the dispatch itself never fails, and an
// offline user simply yields (0, 0).
func (d *Dispatcher) Dispatch(ctx context.Context, userID string, n Notification) (delivered, dropped int) {
	for _, conn := range d.registry.Connections(userID) {
		if err := conn.WriteNotification(ctx, n); err != nil {
			d.registry.Unbind(userID, conn)
			_ = conn.Close()
			dropped++
			d.logger.Debug().
				Str("user_id", userID).
				Err(err).
				Msg("notification write failed, connection dropped")
			continue
		}
		delivered++
	}

	if delivered > 0 {
		d.logger.Debug().
			Str("user_id", userID).
			Int("delivered", delivered).
			Msg("notification dispatched")
	}
	return delivered, dropped
}
