package capture

import (
	"context"
	"errors"
)

// ErrNoClients is returned when a detail round starts with no interceptor
// connected; the round still runs on passive capture.
var ErrNoClients = errors.New("no capture clients connected")

// TriggerDetails broadcasts a trigger_details message, asking connected
// interceptor clients to coax the host page into emitting event-detail
// responses.
func (s *Server) TriggerDetails(ctx context.Context) error {
	if s.hub.ClientCount() == 0 {
		return ErrNoClients
	}
	s.hub.Broadcast(NewTriggerDetailsMessage())
	return nil
}

// PushStatus broadcasts a capture-progress update to every client. Wired
// as the reconciler's status observer.
func (s *Server) PushStatus(data interface{}) {
	s.hub.Broadcast(NewStatusMessage(data))
}
