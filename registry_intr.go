package vmi

// registerIntr implements spec §4.3: symmetric to the register registry,
// keyed by interrupt vector.
func (s *Session) registerIntr(sub *Subscription) error {
	payload := sub.Intr
	if _, exists := s.intrEvents[payload.Vector]; exists {
		s.logger.Debugf("interrupt event already registered on vector %d", payload.Vector)
		return newErrf(KindAlreadyExists, "interrupt event already registered on vector %d", payload.Vector)
	}

	if err := s.driver.SetIntrAccess(payload); err != nil {
		recordDriverRejection()
		return wrapDriverErr("driver rejected interrupt access install", err)
	}

	s.intrEvents[payload.Vector] = sub
	recordIntrRegistration()
	return nil
}

// clearIntr implements spec §4.3: clearing sets enabled=0 before calling
// the driver, restoring nothing afterwards (unlike register clear, the
// interrupt payload's enabled flag is meant to end up false).
func (s *Session) clearIntr(sub *Subscription) error {
	payload := sub.Intr
	if _, exists := s.intrEvents[payload.Vector]; !exists {
		s.logger.Debugf("clear interrupt event failed, not registered on vector %d", payload.Vector)
		return newErrf(KindNotFound, "no interrupt event registered on vector %d", payload.Vector)
	}

	payload.Enabled = false
	if err := s.driver.SetIntrAccess(payload); err != nil {
		recordDriverRejection()
		return wrapDriverErr("driver rejected interrupt access clear", err)
	}

	delete(s.intrEvents, payload.Vector)
	recordClear()
	return nil
}

// clearIntrShutdown disarms the interrupt without touching the registry.
func (s *Session) clearIntrShutdown(sub *Subscription) error {
	payload := sub.Intr
	payload.Enabled = false
	return s.driver.SetIntrAccess(payload)
}

// GetIntrEvent returns the Subscription registered on vector, if any.
func (s *Session) GetIntrEvent(vector uint32) *Subscription {
	if !s.eventsEnabled {
		return nil
	}
	return s.intrEvents[vector]
}
