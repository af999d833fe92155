// Package endpoint is the facade an application links against: it owns
// the router, the connection manager, and the physical link for a
// single node, and is the only place that decides when networking work
// actually happens. Everything below it is pure state machine; this is
// the part with a clock.
package endpoint

import (
	"context"
	"sync"
	"time"

	"rf24mesh/internal/addr"
	"rf24mesh/internal/conn"
	"rf24mesh/internal/frame"
	"rf24mesh/internal/meshresult"
	"rf24mesh/internal/physaddr"
	"rf24mesh/internal/physlink"
	"rf24mesh/internal/router"
)

// Mode selects how an endpoint acquires its logical address and parent.
type Mode uint8

const (
	// ModeStatic takes NodeAddress and ParentAddress from Config as
	// given; no address-assignment protocol runs.
	ModeStatic Mode = iota
	// ModeMesh allows ParentAddress to be RSVDAddrLookup, deferring
	// parent selection to a future address-assignment pass.
	ModeMesh
)

func (m Mode) String() string {
	if m == ModeMesh {
		return "MESH"
	}
	return "STATIC"
}

// DefaultQueueSize is used for RXQueueSize/TXQueueSize when a Config
// leaves them at zero: five frames, matching the radio's own small
// hardware FIFO depth. A zero AppRXQueueSize is passed through to the
// connection manager, which applies its own default.
const DefaultQueueSize = 5

// DefaultTickInterval is the cadence DoAsyncProcessing uses when called
// with a non-positive interval: fast enough to feel responsive on a
// thread tick, slow enough not to spin the physical link needlessly.
const DefaultTickInterval = 50 * time.Millisecond

// LogSink receives free-text diagnostic lines from the endpoint and
// the subsystems it owns. An internal/logger.Sink value satisfies
// this by shape; the endpoint never imports that package directly.
type LogSink interface {
	Log(level, message string, fields map[string]interface{})
}

// Config collects everything Configure needs to bring an endpoint up.
type Config struct {
	Mode            Mode
	NodeAddress     addr.LogicalAddress
	ParentAddress   addr.LogicalAddress
	DeviceName      string
	RFChannel       uint8
	DataRate        physlink.DataRate
	PowerAmplitude  physlink.PowerAmplitude
	RXQueueSize     int
	TXQueueSize     int
	AppRXQueueSize  int
	ConnectTimeout  time.Duration
	LivenessConfig  conn.Config
}

// Stats is a snapshot of the router's wire-level counters, surfaced for
// the control-plane status endpoint.
type Stats struct {
	Misroutes    uint64
	Retries      uint64
	TXFailures   uint64
	TXQueueDepth int
	RXQueueDepth int
}

// Endpoint is the sole owner of a node's router, connection manager,
// and physical link. It is safe for concurrent use; DoAsyncProcessing
// runs its own goroutine and every other method takes the same lock.
type Endpoint struct {
	link       physlink.Link
	derivePhys router.PhysAddrFunc
	guard      *router.AddressGuard

	mu         sync.Mutex
	cfg        Config
	name       string
	logger     LogSink
	configured bool
	router     *router.Router
	connMgr    *conn.Manager
	writeID    uint16

	ticking  bool
	stopTick chan struct{}
	tickWG   sync.WaitGroup
}

// New returns an unconfigured Endpoint bound to link and using
// derivePhys to resolve physical addresses for forwarding. guard may be
// nil to disable bind-site enforcement at the router layer.
func New(link physlink.Link, derivePhys router.PhysAddrFunc, guard *router.AddressGuard) *Endpoint {
	return &Endpoint{link: link, derivePhys: derivePhys, guard: guard}
}

// AttachLogger installs sink for subsequent diagnostic output. Passing
// nil silences logging.
func (e *Endpoint) AttachLogger(sink LogSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logger = sink
}

// SetName records a human-readable device name, surfaced by the
// control plane and carried into persisted bind-site records.
func (e *Endpoint) SetName(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.name = name
}

func (e *Endpoint) logf(level, message string, fields map[string]interface{}) {
	if e.logger != nil {
		e.logger.Log(level, message, fields)
	}
}

func validateParent(cfg Config) error {
	if addr.IsRoot(cfg.NodeAddress) {
		return nil
	}
	if cfg.ParentAddress == addr.RSVDAddrLookup {
		if cfg.Mode != ModeMesh {
			return meshresult.New(meshresult.InvalidAddress, "LOOKUP parent address is only accepted in MESH mode")
		}
		return nil
	}
	if !addr.IsValid(cfg.ParentAddress) {
		return meshresult.New(meshresult.InvalidAddress, "parent address is not valid")
	}
	if !addr.IsDirectDescendant(cfg.ParentAddress, cfg.NodeAddress) {
		return meshresult.New(meshresult.InvalidAddress, "node address is not a direct child of its configured parent")
	}
	return nil
}

// Configure brings the endpoint up: validates cfg, binds the physical
// link's six pipe addresses, applies the radio settings, and
// constructs the router and connection manager. It fails with
// ALREADY_CONFIGURED on a second call, including after Close; a new
// Endpoint is needed to configure again.
func (e *Endpoint) Configure(cfg Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.configured {
		return meshresult.New(meshresult.AlreadyConfigured, "endpoint is already configured")
	}
	if !addr.IsValid(cfg.NodeAddress) {
		return meshresult.New(meshresult.InvalidAddress, "node address is not valid")
	}
	if err := validateParent(cfg); err != nil {
		return err
	}
	if cfg.RFChannel > physlink.MaxChannel {
		return meshresult.New(meshresult.InvalidAddress, "rf channel out of range")
	}

	var pipeAddrs [6]physaddr.Address
	for pipe := 0; pipe <= physaddr.MaxNumPipes; pipe++ {
		phys, err := e.derivePhys(cfg.NodeAddress, pipe)
		if err != nil {
			return meshresult.New(meshresult.InvalidAddress, err.Error())
		}
		pipeAddrs[pipe] = phys
	}
	if err := e.link.Init(pipeAddrs); err != nil {
		return meshresult.New(meshresult.NotConfigured, err.Error())
	}
	if err := e.link.SetChannel(cfg.RFChannel); err != nil {
		return err
	}
	if err := e.link.SetDataRate(cfg.DataRate); err != nil {
		return err
	}
	if err := e.link.SetPowerAmplitude(cfg.PowerAmplitude); err != nil {
		return err
	}

	rxSize := cfg.RXQueueSize
	if rxSize <= 0 {
		rxSize = DefaultQueueSize
	}
	txSize := cfg.TXQueueSize
	if txSize <= 0 {
		txSize = DefaultQueueSize
	}
	rtr, err := router.New(cfg.NodeAddress, e.link, e.derivePhys, router.Config{
		RXQueueSize: rxSize,
		TXQueueSize: txSize,
		Guard:       e.guard,
	})
	if err != nil {
		return err
	}

	connCfg := cfg.LivenessConfig
	connCfg.Guard = e.guard
	if connCfg.ConnectTimeout <= 0 {
		connCfg.ConnectTimeout = cfg.ConnectTimeout
	}
	if connCfg.AppRXQueueSize <= 0 {
		connCfg.AppRXQueueSize = cfg.AppRXQueueSize
	}

	e.router = rtr
	e.connMgr = conn.NewManager(cfg.NodeAddress, rtr, connCfg)
	e.cfg = cfg
	if e.name == "" {
		e.name = cfg.DeviceName
	}
	e.configured = true
	return nil
}

// Connect blocks until the PARENT bind site resolves or timeout
// elapses, returning whether it ended up BOUND. A non-positive timeout
// falls back to the connection manager's configured default.
func (e *Endpoint) Connect(ctx context.Context, timeout time.Duration) bool {
	e.mu.Lock()
	cm, parent := e.connMgr, e.cfg.ParentAddress
	e.mu.Unlock()
	if cm == nil {
		return false
	}
	// The manager's spin loop only drains TX and ticks timers; this loop
	// also polls the link so the parent's reply is actually received.
	done := make(chan bool, 1)
	go func() { done <- cm.Connect(ctx, parent, timeout) }()
	for {
		select {
		case ok := <-done:
			return ok
		case <-time.After(10 * time.Millisecond):
			e.ProcessNetworking(ctx, time.Now())
		}
	}
}

// ConnectAsync begins connecting to the configured parent without
// blocking; cb fires later from a DoAsyncProcessing/ProcessNetworking
// pass with the outcome.
func (e *Endpoint) ConnectAsync(timeout time.Duration, cb func(meshresult.Kind)) error {
	e.mu.Lock()
	cm, parent := e.connMgr, e.cfg.ParentAddress
	e.mu.Unlock()
	if cm == nil {
		return meshresult.New(meshresult.NotConfigured, "endpoint is not configured")
	}
	return cm.ConnectAsync(parent, timeout, cb)
}

// Disconnect tears down the PARENT bind site, notifying the parent if
// it was BOUND.
func (e *Endpoint) Disconnect() {
	e.mu.Lock()
	cm := e.connMgr
	e.mu.Unlock()
	if cm != nil {
		cm.Disconnect(addr.BindSiteParent)
	}
}

// Ping sends a NET_PING to dst and blocks until the matching
// NET_PING_ACK arrives or timeout elapses.
func (e *Endpoint) Ping(ctx context.Context, dst addr.LogicalAddress, timeout time.Duration) bool {
	e.mu.Lock()
	cm := e.connMgr
	e.mu.Unlock()
	if cm == nil {
		return false
	}
	done := make(chan bool, 1)
	go func() { done <- cm.Ping(ctx, dst, timeout) }()
	for {
		select {
		case ok := <-done:
			return ok
		case <-time.After(10 * time.Millisecond):
			e.ProcessNetworking(ctx, time.Now())
		}
	}
}

// Write hands payload to the router for delivery to dst as an
// application frame, assigning it the next sequential ID. It returns
// NOT_CONFIGURED before Configure has succeeded.
func (e *Endpoint) Write(dst addr.LogicalAddress, payload []byte) (uint16, error) {
	e.mu.Lock()
	rtr := e.router
	e.writeID++
	id := e.writeID
	e.mu.Unlock()
	if rtr == nil {
		return 0, meshresult.New(meshresult.NotConfigured, "endpoint is not configured")
	}
	if err := rtr.Write(dst, payload, frame.MsgTXNormal, id); err != nil {
		return 0, err
	}
	return id, nil
}

// PacketAvailable reports whether Read would return a packet without
// blocking.
func (e *Endpoint) PacketAvailable() bool {
	e.mu.Lock()
	cm := e.connMgr
	e.mu.Unlock()
	return cm != nil && cm.AppRX().Len() > 0
}

// NextPacketLength reports how many bytes the next queued packet would
// copy into Read's buffer, or 0 if none is queued. Every frame carries
// a fixed PayloadWidth-byte payload, trailing zeros included; callers
// that embed their own length prefix should read it back out of buf.
func (e *Endpoint) NextPacketLength() int {
	if !e.PacketAvailable() {
		return 0
	}
	return frame.PayloadWidth
}

// Read copies the oldest queued application packet's payload into buf
// and reports how many bytes were copied; ok is false if nothing was
// queued. buf shorter than PayloadWidth truncates the copy silently,
// matching the underlying fixed-size radio payload.
func (e *Endpoint) Read(buf []byte) (n int, ok bool) {
	e.mu.Lock()
	cm := e.connMgr
	e.mu.Unlock()
	if cm == nil {
		return 0, false
	}
	f, popped := cm.AppRX().Pop()
	if !popped {
		return 0, false
	}
	return copy(buf, f.Payload[:]), true
}

// SelfAddress returns the node's configured logical address, or the
// root address before Configure has run.
func (e *Endpoint) SelfAddress() addr.LogicalAddress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.NodeAddress
}

// BindSiteState reports a bind site's current connection state and
// bound peer.
func (e *Endpoint) BindSiteState(site addr.BindSite) (conn.State, addr.LogicalAddress) {
	e.mu.Lock()
	cm := e.connMgr
	e.mu.Unlock()
	if cm == nil {
		return conn.StateNotApplicable, 0
	}
	return cm.State(site)
}

// Stats returns a snapshot of the router's wire-level counters.
func (e *Endpoint) Stats() Stats {
	e.mu.Lock()
	rtr := e.router
	e.mu.Unlock()
	if rtr == nil {
		return Stats{}
	}
	return Stats{
		Misroutes:    rtr.Misroutes(),
		Retries:      rtr.Retries(),
		TXFailures:   rtr.TXFailures(),
		TXQueueDepth: rtr.TX.Len(),
		RXQueueDepth: rtr.RX.Len(),
	}
}

// ProcessNetworking runs a single pass of the endpoint's networking
// work: drain every frame currently waiting on the physical link into
// the router's receive path, then pump the router's TX queue and the
// connection manager's timers. It returns promptly and never blocks on
// the link.
func (e *Endpoint) ProcessNetworking(ctx context.Context, now time.Time) {
	e.mu.Lock()
	rtr, cm, logger := e.router, e.connMgr, e.logger
	e.mu.Unlock()
	if rtr == nil || cm == nil {
		return
	}

	for {
		in, ok := e.link.Poll()
		if !ok {
			break
		}
		if err := rtr.OnFrame(in.Pipe, in.Frame); err != nil && logger != nil {
			logger.Log("warn", "dropped inbound frame", map[string]interface{}{
				"pipe":  in.Pipe,
				"error": err.Error(),
			})
		}
	}
	cm.Pump(ctx, now)
}

// DoAsyncProcessing starts a background goroutine that calls
// ProcessNetworking once per interval (DefaultTickInterval if interval
// is non-positive). Calling it again while already running is a no-op;
// pair it with StopAsyncProcessing.
func (e *Endpoint) DoAsyncProcessing(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	e.mu.Lock()
	if e.ticking {
		e.mu.Unlock()
		return
	}
	e.ticking = true
	stop := make(chan struct{})
	e.stopTick = stop
	e.mu.Unlock()

	e.tickWG.Add(1)
	go func() {
		defer e.tickWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		ctx := context.Background()
		for {
			select {
			case <-ticker.C:
				e.ProcessNetworking(ctx, time.Now())
			case <-stop:
				return
			}
		}
	}()
}

// StopAsyncProcessing halts the goroutine started by DoAsyncProcessing
// and waits for it to exit. It is a no-op if no goroutine is running.
func (e *Endpoint) StopAsyncProcessing() {
	e.mu.Lock()
	if !e.ticking {
		e.mu.Unlock()
		return
	}
	e.ticking = false
	stop := e.stopTick
	e.mu.Unlock()
	close(stop)
	e.tickWG.Wait()
}

// Close stops any background processing and releases the physical
// link. A closed Endpoint must not be reused.
func (e *Endpoint) Close() error {
	e.StopAsyncProcessing()
	return e.link.Close()
}
