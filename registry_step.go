package vmi

// registerSingleStep implements spec §4.4: for each vCPU set in the
// payload's bitmap, a collision with an already-registered vCPU is logged
// and skipped rather than aborting the whole call — the other requested
// vCPUs still get armed.
func (s *Session) registerSingleStep(sub *Subscription) error {
	payload := sub.Step
	var lastErr error
	armed := 0

	for vcpu := uint32(0); vcpu < s.vcpuCount; vcpu++ {
		if !payload.HasVCPU(vcpu) {
			continue
		}
		if _, exists := s.ssEvents[vcpu]; exists {
			s.logger.Debugf("single-step event already registered on vcpu %d", vcpu)
			lastErr = newErrf(KindAlreadyExists, "single-step event already registered on vcpu %d", vcpu)
			continue
		}
		if err := s.driver.StartSingleStep(payload); err != nil {
			recordDriverRejection()
			lastErr = wrapDriverErr("driver rejected single-step start", err)
			continue
		}
		s.ssEvents[vcpu] = sub
		armed++
	}

	if armed > 0 {
		recordStepRegistration()
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return newErr(KindBadArgument, "single-step payload requested no vCPUs")
}

// clearSingleStep implements spec §4.4: stop stepping every vCPU the
// payload names, remove the registry entries the driver agreed to clear,
// and shut the whole single-step registry down once it is empty.
func (s *Session) clearSingleStep(sub *Subscription) error {
	payload := sub.Step
	var lastErr error
	cleared := 0

	for vcpu := uint32(0); vcpu < s.vcpuCount; vcpu++ {
		if !payload.HasVCPU(vcpu) {
			continue
		}
		if err := s.driver.StopSingleStep(vcpu); err != nil {
			recordDriverRejection()
			lastErr = wrapDriverErr("driver rejected single-step stop", err)
			continue
		}
		delete(s.ssEvents, vcpu)
		cleared++
	}

	if cleared > 0 {
		recordClear()
	}
	if len(s.ssEvents) == 0 {
		// Mirrors libvmi's clear_singlestep_event: once the last vCPU
		// drops out of the registry, run the full shutdown path rather
		// than leaving the driver's per-vCPU state to chance.
		if err := s.driver.ShutdownSingleStep(); err != nil {
			s.logger.Errorf("driver rejected single-step shutdown during clear: %v", err)
		}
		s.shutdownSingleStepRegistry()
	}
	if cleared == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

// clearSingleStepShutdown disarms every vCPU the payload names without
// touching the registry map.
func (s *Session) clearSingleStepShutdown(sub *Subscription) error {
	payload := sub.Step
	var lastErr error
	for vcpu := uint32(0); vcpu < s.vcpuCount; vcpu++ {
		if !payload.HasVCPU(vcpu) {
			continue
		}
		if err := s.driver.StopSingleStep(vcpu); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// StopSingleStepVCPU directly clears one vCPU's single-step, independent
// of whatever other vCPUs sub's bitmap names (spec §4.4).
func (s *Session) StopSingleStepVCPU(sub *Subscription, vcpu uint32) error {
	if err := s.checkEnabled(); err != nil {
		return err
	}
	if sub == nil || sub.Step == nil {
		return ErrNilSub
	}

	if err := s.driver.StopSingleStep(vcpu); err != nil {
		recordDriverRejection()
		return wrapDriverErr("driver rejected single-step stop", err)
	}

	sub.Step.UnsetVCPU(vcpu)
	delete(s.ssEvents, vcpu)
	recordClear()
	return nil
}

// ShutdownSingleStep instructs the driver to stop stepping every vCPU,
// then destroys and recreates the single-step registry (spec §4.4.1).
func (s *Session) ShutdownSingleStep() error {
	if err := s.checkEnabled(); err != nil {
		return err
	}
	if err := s.driver.ShutdownSingleStep(); err != nil {
		recordDriverRejection()
		return wrapDriverErr("driver rejected single-step shutdown", err)
	}
	s.shutdownSingleStepRegistry()
	return nil
}

func (s *Session) shutdownSingleStepRegistry() {
	s.ssEvents = make(map[uint32]*Subscription)
}

// GetSingleStepEvent returns the Subscription registered on vcpu, if any.
func (s *Session) GetSingleStepEvent(vcpu uint32) *Subscription {
	if !s.eventsEnabled {
		return nil
	}
	return s.ssEvents[vcpu]
}

// StepMemEvent is the Step Coordinator's entry point (spec §4.6): callable
// only from inside a memory-event callback, it arms one single-step
// subscription on m.VCPUID whose callback re-registers m after steps
// single-step notifications fire on that vCPU.
func (s *Session) StepMemEvent(m *Subscription, steps int) error {
	if err := s.checkEnabled(); err != nil {
		return err
	}
	if m == nil || m.Mem == nil {
		return newErr(KindBadArgument, "step_mem_event requires a memory subscription")
	}
	if m.Type != EventMemory {
		return newErr(KindBadArgument, "step_mem_event requires a memory event")
	}
	if steps < 1 {
		return newErr(KindBadArgument, "step_mem_event requires steps >= 1")
	}
	if _, exists := s.ssEvents[m.VCPUID]; exists {
		return newErrf(KindAlreadyExists, "single-step already enabled on vcpu %d", m.VCPUID)
	}

	ssPayload := &SingleStepPayload{}
	ssPayload.SetVCPU(m.VCPUID)
	ssSub := &Subscription{
		Type:     EventSingleStep,
		VCPUID:   m.VCPUID,
		Callback: s.rereg,
		Step:     ssPayload,
	}

	if err := s.registerSingleStep(ssSub); err != nil {
		return err
	}

	s.stepQueue = append(s.stepQueue, &stepWrapper{mem: m, steps: steps})
	return nil
}

// rereg is the Step Coordinator's re-registration handler (spec §4.6),
// installed as the callback of every single-step subscription it creates.
// It decrements every queued wrapper whose event's vCPU matches the
// firing vCPU, re-registers and frees the ones that reached zero, and
// tears down the single-step subscription once the queue empties.
func (s *Session) rereg(sess *Session, ssSub *Subscription) error {
	firingVCPU := ssSub.VCPUID

	remaining := s.stepQueue[:0]
	for _, wrap := range s.stepQueue {
		if wrap.mem.VCPUID == firingVCPU {
			wrap.steps--
		}
		if wrap.steps <= 0 {
			recordStepReregistration()
			if err := s.registerMem(wrap.mem); err != nil {
				s.logger.Errorf("step coordinator failed to re-register memory event: %v", err)
			}
			continue
		}
		remaining = append(remaining, wrap)
	}
	s.stepQueue = remaining

	if len(s.stepQueue) == 0 {
		return s.clearSingleStep(ssSub)
	}
	return nil
}
