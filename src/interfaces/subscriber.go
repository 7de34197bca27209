package interfaces

import "regatta-live/src/models"

// -----------------------------------------------------------------------------
// ISubscriber is one live connection receiving fleet events.
// Send must not block; a returned error drops the subscriber.
// -----------------------------------------------------------------------------

type ISubscriber interface {
	Send(event *models.MFleetEvent) error
}

// IClosableSubscriber is notified when its race channel shuts down.
type IClosableSubscriber interface {
	ISubscriber
	Close()
}
