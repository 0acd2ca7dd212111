package vmi

// RegisterEvent validates sub and dispatches on its type to the matching
// registry (spec §4.7).
func (s *Session) RegisterEvent(sub *Subscription) error {
	if err := s.validate(sub); err != nil {
		return err
	}

	switch sub.Type {
	case EventRegister:
		return s.registerReg(sub)
	case EventMemory:
		return s.registerMem(sub)
	case EventInterrupt:
		return s.registerIntr(sub)
	case EventSingleStep:
		return s.registerSingleStep(sub)
	default:
		return newErrf(KindBadArgument, "unknown event type %d", sub.Type)
	}
}

// ClearEvent validates sub and dispatches on its type to the matching
// registry's clear path (spec §4.7).
func (s *Session) ClearEvent(sub *Subscription) error {
	if err := s.validate(sub); err != nil {
		return err
	}

	switch sub.Type {
	case EventRegister:
		return s.clearReg(sub)
	case EventMemory:
		return s.clearMem(sub)
	case EventInterrupt:
		return s.clearIntr(sub)
	case EventSingleStep:
		return s.clearSingleStep(sub)
	default:
		return newErrf(KindBadArgument, "unknown event type %d", sub.Type)
	}
}

// EventsListen forwards to the driver's event-pump entry point, which
// invokes registered callbacks synchronously as deliveries occur (spec
// §4.7, §6.2).
func (s *Session) EventsListen(timeoutMs int) error {
	if err := s.checkEnabled(); err != nil {
		return err
	}
	if err := s.driver.EventsListen(s, timeoutMs); err != nil {
		return wrapDriverErr("driver event pump failed", err)
	}
	return nil
}

func (s *Session) validate(sub *Subscription) error {
	if err := s.checkEnabled(); err != nil {
		return err
	}
	if sub == nil {
		return ErrNilSub
	}
	if sub.Callback == nil {
		return ErrNilCallback
	}
	if !sub.payloadOK() {
		return newErrf(KindBadArgument, "subscription type %s missing matching payload", sub.Type)
	}
	return nil
}
