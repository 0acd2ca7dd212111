package vmi

// registerReg implements spec §4.2: fail AlreadyExists if the register id
// is already keyed, otherwise ask the driver to install the desired access
// mask and only insert the entry once the driver agrees.
func (s *Session) registerReg(sub *Subscription) error {
	payload := sub.Reg
	if _, exists := s.regEvents[payload.Reg]; exists {
		s.logger.Debugf("register event already registered on reg %d", payload.Reg)
		return newErrf(KindAlreadyExists, "register event already registered on reg %d", payload.Reg)
	}

	if err := s.driver.SetRegAccess(payload); err != nil {
		recordDriverRejection()
		return wrapDriverErr("driver rejected register access install", err)
	}

	s.regEvents[payload.Reg] = sub
	recordRegRegistration()
	return nil
}

// clearReg implements spec §4.2: disarm by asking the driver for access N,
// restoring the payload's originally-requested access afterwards, and
// removing the entry only once the driver agrees (and we are not
// shutting down — see clearRegShutdown for that path).
func (s *Session) clearReg(sub *Subscription) error {
	payload := sub.Reg
	if _, exists := s.regEvents[payload.Reg]; !exists {
		s.logger.Debugf("clear register event failed, not registered on reg %d", payload.Reg)
		return newErrf(KindNotFound, "no register event registered on reg %d", payload.Reg)
	}

	original := payload.Access
	payload.Access = RegNone
	err := s.driver.SetRegAccess(payload)
	payload.Access = original

	if err != nil {
		recordDriverRejection()
		return wrapDriverErr("driver rejected register access clear", err)
	}

	delete(s.regEvents, payload.Reg)
	recordClear()
	return nil
}

// clearRegShutdown asks the driver to disarm the register without
// touching the registry map, so Teardown can iterate it safely.
func (s *Session) clearRegShutdown(sub *Subscription) error {
	payload := sub.Reg
	original := payload.Access
	payload.Access = RegNone
	err := s.driver.SetRegAccess(payload)
	payload.Access = original
	return err
}

// GetRegEvent returns the Subscription registered on reg, if any.
func (s *Session) GetRegEvent(reg RegID) *Subscription {
	if !s.eventsEnabled {
		return nil
	}
	return s.regEvents[reg]
}
