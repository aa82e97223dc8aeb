package systems

// Subscription identifies a registered detection handler.
type Subscription uint64

// DetectionSignal delivers detection edges to subscribers in registration order.
// Handlers run synchronously inside VisibilityEngine.Evaluate.
type DetectionSignal struct {
	next     Subscription
	handlers []detectionHandler
}

type detectionHandler struct {
	id Subscription
	fn func(detected bool)
}

// Subscribe registers fn and returns a handle for Unsubscribe.
func (s *DetectionSignal) Subscribe(fn func(detected bool)) Subscription {
	s.next++
	s.handlers = append(s.handlers, detectionHandler{id: s.next, fn: fn})
	return s.next
}

// Unsubscribe removes a handler. Unknown handles are ignored.
func (s *DetectionSignal) Unsubscribe(id Subscription) {
	for i, h := range s.handlers {
		if h.id == id {
			s.handlers = append(s.handlers[:i], s.handlers[i+1:]...)
			return
		}
	}
}

// Publish calls every handler with the new detection state.
func (s *DetectionSignal) Publish(detected bool) {
	// Copy so handlers may unsubscribe while being notified.
	handlers := make([]detectionHandler, len(s.handlers))
	copy(handlers, s.handlers)
	for _, h := range handlers {
		h.fn(detected)
	}
}

// Subscribers returns the number of registered handlers.
func (s *DetectionSignal) Subscribers() int {
	return len(s.handlers)
}
