package vmi

// Config configures a Session at Init time (spec §6.3).
type Config struct {
	// EventsEnabled gates registry allocation. If false, Init succeeds but
	// every registry operation fails with KindNotEnabled — matching
	// libvmi's VMI_INIT_EVENTS init-mode flag.
	EventsEnabled bool
	// VCPUCount bounds the vCPU bitmap RegisterEvent walks for SingleStep
	// subscriptions. Must be set when registering SingleStep events.
	VCPUCount uint32
	// Logger receives diagnostic output. Defaults to a discard logger
	// unless VMI_DEBUG is set, in which case it defaults to a slog text
	// handler on stderr.
	Logger Logger
}

// pageEntry is the library-owned aggregate for one physical page (spec
// §3). The entry exists in Session.memEvents only while pageEvent is
// non-nil, byteEvents is non-empty, or both.
type pageEntry struct {
	pageKey    uint64
	accessFlag MemAccess
	pageEvent  *Subscription
	byteEvents map[uint64]*Subscription
}

// stepWrapper is the library-owned bookkeeping for a memory event awaiting
// re-arm after N single-steps (spec §3, §4.6).
type stepWrapper struct {
	mem   *Subscription
	steps int
}

// Session is a long-lived introspection session bound to one Driver: four
// event registries, a pending single-step re-arm queue, and the
// events-enabled/shutting-down flags that gate every operation (spec §2).
//
// A Session is not safe for concurrent use from multiple goroutines; it is
// safe for the reentrant, single-threaded nested calls the driver's
// EventsListen may trigger from inside a callback (spec §5).
type Session struct {
	driver Driver
	logger Logger

	eventsEnabled bool
	shuttingDown  bool
	vcpuCount     uint32

	regEvents  map[RegID]*Subscription
	intrEvents map[uint32]*Subscription
	ssEvents   map[uint32]*Subscription
	memEvents  map[uint64]*pageEntry

	stepQueue []*stepWrapper
}

// Init allocates a Session bound to driver. If cfg.EventsEnabled is false,
// no registries are allocated and every subsequent event operation fails
// with KindNotEnabled (spec §4.1) — Init itself still succeeds, since a
// disabled session is a valid, if inert, configuration.
func Init(driver Driver, cfg Config) (*Session, error) {
	if driver == nil {
		return nil, newErr(KindBadArgument, "nil driver")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = defaultSessionLogger()
	}

	sess := &Session{
		driver:        driver,
		logger:        logger,
		eventsEnabled: cfg.EventsEnabled,
		vcpuCount:     cfg.VCPUCount,
	}

	if cfg.EventsEnabled {
		sess.allocRegistries()
	}

	return sess, nil
}

func (s *Session) allocRegistries() {
	s.regEvents = make(map[RegID]*Subscription)
	s.intrEvents = make(map[uint32]*Subscription)
	s.ssEvents = make(map[uint32]*Subscription)
	s.memEvents = make(map[uint64]*pageEntry)
	s.stepQueue = nil
}

// Teardown sets the shutting-down flag, walks every registry asking the
// driver to disarm each still-registered subscription without mutating
// the registry (avoiding iterator invalidation, spec §4.1), then frees the
// registries. A Session is not usable after Teardown.
func (s *Session) Teardown() {
	if !s.eventsEnabled {
		return
	}
	s.shuttingDown = true

	for _, sub := range s.regEvents {
		_ = s.clearRegShutdown(sub)
	}
	for _, sub := range s.intrEvents {
		_ = s.clearIntrShutdown(sub)
	}
	for _, sub := range s.ssEvents {
		_ = s.clearSingleStepShutdown(sub)
	}
	for _, page := range s.memEvents {
		_ = s.clearMemPageShutdown(page)
	}

	s.regEvents = nil
	s.intrEvents = nil
	s.ssEvents = nil
	s.memEvents = nil
	s.stepQueue = nil
	s.eventsEnabled = false
}

func (s *Session) checkEnabled() error {
	if !s.eventsEnabled {
		return ErrNotEnabled
	}
	return nil
}
