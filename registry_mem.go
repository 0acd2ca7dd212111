package vmi

// registerMem implements spec §4.5 — the central design. The driver call
// always precedes the registry mutation: a driver rejection or an Invalid
// mask combination leaves the registry exactly as it was.
func (s *Session) registerMem(sub *Subscription) error {
	payload := sub.Mem
	pageKey := payload.PageKey()

	page, exists := s.memEvents[pageKey]
	if !exists {
		// Case A: no Page Entry yet.
		if err := s.driver.SetMemAccess(payload, payload.Access); err != nil {
			recordDriverRejection()
			return wrapDriverErr("driver rejected memory access install", err)
		}

		page = &pageEntry{pageKey: pageKey, accessFlag: payload.Access}
		if payload.Granularity == GranularityPage {
			page.pageEvent = sub
		} else {
			page.byteEvents = map[uint64]*Subscription{payload.PhysicalAddress: sub}
		}
		s.memEvents[pageKey] = page
		recordMemRegistration()
		return nil
	}

	if payload.Granularity == GranularityPage {
		// Case B: Page Entry exists, page-granular request.
		if page.pageEvent != nil {
			s.logger.Debugf("memory event already registered on page %d", pageKey)
			return newErrf(KindAlreadyExists, "memory event already registered on page %d", pageKey)
		}

		combined := page.accessFlag.Combine(payload.Access)
		if combined == MemInvalid {
			recordMaskInvalid()
			return newErrf(KindMaskInvalid, "page %d access %s conflicts with installed %s", pageKey, payload.Access, page.accessFlag)
		}

		if err := s.driver.SetMemAccess(payload, combined); err != nil {
			recordDriverRejection()
			return wrapDriverErr("driver rejected memory access install", err)
		}

		page.accessFlag = combined
		page.pageEvent = sub
		recordMemRegistration()
		return nil
	}

	// Case C: Page Entry exists, byte-granular request.
	if page.byteEvents != nil {
		if _, exists := page.byteEvents[payload.PhysicalAddress]; exists {
			s.logger.Debugf("memory event already registered on byte 0x%x", payload.PhysicalAddress)
			return newErrf(KindAlreadyExists, "memory event already registered on byte 0x%x", payload.PhysicalAddress)
		}
	}

	combined := page.accessFlag.Combine(payload.Access)
	if combined == MemInvalid {
		recordMaskInvalid()
		return newErrf(KindMaskInvalid, "byte 0x%x access %s conflicts with installed %s", payload.PhysicalAddress, payload.Access, page.accessFlag)
	}

	if err := s.driver.SetMemAccess(payload, combined); err != nil {
		recordDriverRejection()
		return wrapDriverErr("driver rejected memory access install", err)
	}

	if page.byteEvents == nil {
		page.byteEvents = make(map[uint64]*Subscription)
	}
	page.byteEvents[payload.PhysicalAddress] = sub
	page.accessFlag = combined
	recordMemRegistration()
	return nil
}

// clearMem implements spec §4.5's clear algorithm for the non-shutdown
// path (shutting_down is handled by clearMemPageShutdown instead, run
// only from Teardown).
func (s *Session) clearMem(sub *Subscription) error {
	payload := sub.Mem
	pageKey := payload.PageKey()

	page, exists := s.memEvents[pageKey]
	if !exists {
		s.logger.Debugf("clear memory event failed, no page entry for %d", pageKey)
		return newErrf(KindNotFound, "no memory event registered on page %d", pageKey)
	}

	if payload.Granularity == GranularityPage {
		if page.pageEvent == nil {
			s.logger.Debugf("can't disable page-level memory event, not registered on page %d", pageKey)
			return newErrf(KindNotFound, "no page-level memory event registered on page %d", pageKey)
		}

		// Recompute the aggregate from the surviving byte-level entries,
		// starting from None — the page-level subscription being cleared
		// contributes nothing once gone.
		aggregate := MemNone
		for _, byteSub := range page.byteEvents {
			aggregate = aggregate.Combine(byteSub.Mem.Access)
		}

		if err := s.driver.SetMemAccess(payload, aggregate); err != nil {
			recordDriverRejection()
			return wrapDriverErr("driver rejected memory access clear", err)
		}

		page.accessFlag = aggregate
		page.pageEvent = nil
		recordClear()

		if len(page.byteEvents) == 0 {
			delete(s.memEvents, pageKey)
		}
		return nil
	}

	// Byte granularity.
	byteSub, exists := page.byteEvents[payload.PhysicalAddress]
	if !exists {
		s.logger.Debugf("can't disable byte-level memory event, not registered on 0x%x", payload.PhysicalAddress)
		return newErrf(KindNotFound, "no byte-level memory event registered on 0x%x", payload.PhysicalAddress)
	}

	// Steal the entry: detach without freeing it, so it can be reinserted
	// if the driver rejects the recomputed mask.
	delete(page.byteEvents, payload.PhysicalAddress)

	aggregate := MemNone
	if page.pageEvent != nil {
		aggregate = aggregate.Combine(page.pageEvent.Mem.Access)
	}
	for _, otherSub := range page.byteEvents {
		aggregate = aggregate.Combine(otherSub.Mem.Access)
	}

	if err := s.driver.SetMemAccess(payload, aggregate); err != nil {
		// Reinsert the stolen entry so the registry reflects the still
		// installed hardware state.
		page.byteEvents[payload.PhysicalAddress] = byteSub
		recordDriverRejection()
		return wrapDriverErr("driver rejected memory access clear", err)
	}

	page.accessFlag = aggregate
	if len(page.byteEvents) == 0 {
		page.byteEvents = nil
	}
	if page.pageEvent == nil && page.byteEvents == nil {
		delete(s.memEvents, pageKey)
	}
	recordClear()
	return nil
}

// clearMemPageShutdown asks the driver to clear page to access-None
// without touching the registry, for Teardown's safe iteration.
func (s *Session) clearMemPageShutdown(page *pageEntry) error {
	payload := &MemPayload{
		PhysicalAddress: page.pageKey << 12,
		Granularity:     GranularityPage,
	}
	return s.driver.SetMemAccess(payload, MemNone)
}

// GetMemEvent returns the page-level subscription when granularity is
// GranularityPage, else the byte-level entry at paddr.
func (s *Session) GetMemEvent(paddr uint64, granularity Granularity) *Subscription {
	if !s.eventsEnabled {
		return nil
	}
	page, exists := s.memEvents[paddr>>12]
	if !exists {
		return nil
	}
	if granularity == GranularityPage {
		return page.pageEvent
	}
	if page.byteEvents == nil {
		return nil
	}
	return page.byteEvents[paddr]
}
