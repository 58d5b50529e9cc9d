package server

import (
	"combox/internal/notifications"
)

// publishUserEvent pushes an event to a user's private group through the
// active publisher (redis-backed when available, local hub otherwise).
func (s *Server) publishUserEvent(userID uint, eventType string, payload map[string]interface{}) {
	event := notifications.Event{Type: eventType, Payload: payload}
	if s.notifier != nil {
		s.notifier.ToUser(userID, event)
		return
	}
	s.hub.ToUser(userID, event)
}
