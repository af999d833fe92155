// Package router implements the network layer that sits between an
// endpoint's application traffic and its physical link: routing-step
// next-hop resolution, bounded TX/RX queues, and hop-counted
// forwarding for frames that pass through this node on their way
// elsewhere in the tree.
package router

import (
	"context"
	"fmt"
	"sync/atomic"

	"rf24mesh/internal/addr"
	"rf24mesh/internal/frame"
	"rf24mesh/internal/meshresult"
	"rf24mesh/internal/physaddr"
	"rf24mesh/internal/physlink"
)

// DefaultMaxHopRetries is how many times a single hop's physical write
// is retried after a NAK before the router gives up on that frame.
const DefaultMaxHopRetries = 3

// DefaultMaxHops is one more than the deepest possible tree level; a
// forwarded frame that would exceed it is dropped as a safety valve
// against a corrupted routing decision looping the frame forever.
const DefaultMaxHops = 6

// PhysAddrFunc resolves the physical address a node must write to in
// order to reach peer on the given pipe. Hardware and simulator links
// each get their own implementation from the physaddr package.
type PhysAddrFunc func(peer addr.LogicalAddress, pipe int) (physaddr.Address, error)

// Router is the network layer for a single endpoint. It owns its TX
// and RX queues exclusively; nothing outside the owning endpoint
// should reach into them directly.
type Router struct {
	self         addr.LogicalAddress
	link         physlink.Link
	derivePhys   PhysAddrFunc
	guard        *AddressGuard
	maxHopRetries int
	maxHops      int

	TX *frame.Queue
	RX *frame.Queue

	misroutes  uint64
	retries    uint64
	txFailures uint64
}

// Config collects the knobs New needs beyond the required
// self/link/derivePhys triple.
type Config struct {
	RXQueueSize   int
	TXQueueSize   int
	MaxHopRetries int // 0 means DefaultMaxHopRetries
	MaxHops       int // 0 means DefaultMaxHops
	Guard         *AddressGuard // nil disables forwarding binding checks
}

// New constructs a Router for self, transmitting through link via
// derivePhys to resolve next-hop physical addresses.
func New(self addr.LogicalAddress, link physlink.Link, derivePhys PhysAddrFunc, cfg Config) (*Router, error) {
	if !addr.IsValid(self) {
		return nil, meshresult.New(meshresult.InvalidAddress, fmt.Sprintf("router: self address 0o%o is not valid", self))
	}
	maxRetries := cfg.MaxHopRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxHopRetries
	}
	maxHops := cfg.MaxHops
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	return &Router{
		self:          self,
		link:          link,
		derivePhys:    derivePhys,
		guard:         cfg.Guard,
		maxHopRetries: maxRetries,
		maxHops:       maxHops,
		TX:            frame.NewQueue(cfg.TXQueueSize),
		RX:            frame.NewQueue(cfg.RXQueueSize),
	}, nil
}

// routingStep computes the next hop towards dst from self, per the
// tree-routing rule: descend into the child subtree containing dst, or
// climb towards the parent otherwise.
func routingStep(self, dst addr.LogicalAddress) (addr.LogicalAddress, error) {
	var next addr.LogicalAddress
	if addr.IsDescendant(self, dst) {
		next = addr.AddressAtLevel(dst, addr.Level(self)+1)
	} else {
		next = addr.Parent(self)
	}
	if !addr.IsValid(next) {
		return 0, meshresult.New(meshresult.Unreachable, fmt.Sprintf("no route from 0o%o to 0o%o", self, dst))
	}
	return next, nil
}

// Write is the send path: local delivery if dst is self, otherwise a
// routing-step resolution followed by a TX-queue enqueue. The caller's
// msgType/id become the outgoing frame's header; payload is copied.
func (r *Router) Write(dst addr.LogicalAddress, payload []byte, msgType frame.MsgType, id uint16) error {
	if dst == r.self {
		f, err := frame.NewFrame(dst, r.self, msgType, id, payload)
		if err != nil {
			return err
		}
		if !r.RX.Push(f) {
			return meshresult.New(meshresult.QueueFull, "rx queue full delivering to self")
		}
		return nil
	}

	if _, err := routingStep(r.self, dst); err != nil {
		return err
	}
	f, err := frame.NewFrame(dst, r.self, msgType, id, payload)
	if err != nil {
		return err
	}
	if !r.TX.Push(f) {
		return meshresult.New(meshresult.QueueFull, "tx queue full")
	}
	return nil
}

// OnFrame is the receive path, called once per frame the physical link
// hands back from the given pipe.
func (r *Router) OnFrame(pipe int, f frame.Frame) error {
	if !addr.IsValid(f.Header.SrcNode) {
		return meshresult.New(meshresult.InvalidAddress, "frame source address is not valid")
	}
	dst := f.Header.DstNode
	if !addr.IsValid(dst) && !addr.IsReserved(dst) {
		return meshresult.New(meshresult.InvalidAddress, "frame destination address is not valid")
	}

	if dst == r.self || dst == addr.RSVDAddrMulticast {
		if !r.RX.Push(f) {
			return meshresult.New(meshresult.QueueFull, "rx queue full")
		}
		return nil
	}

	if addr.IsValid(dst) {
		if _, err := routingStep(r.self, dst); err != nil {
			atomic.AddUint64(&r.misroutes, 1)
			return err
		}
		hop := f.Header.Reserved + 1
		if int(hop) > r.maxHops {
			atomic.AddUint64(&r.misroutes, 1)
			return meshresult.New(meshresult.Unreachable, "hop count exceeded forwarding limit")
		}
		f.Header.Reserved = hop
		if !r.TX.Push(f) {
			return meshresult.New(meshresult.QueueFull, "tx queue full forwarding frame")
		}
		return nil
	}

	atomic.AddUint64(&r.misroutes, 1)
	return meshresult.New(meshresult.Unreachable, fmt.Sprintf("no route for destination 0o%o from 0o%o", dst, r.self))
}

// DrainTX transmits every frame currently queued for TX, stopping
// early if ctx is cancelled. It returns the first hard failure
// encountered (after exhausting retries on that frame) but keeps no
// memory of which frames preceded it; callers that need per-frame
// status should call TransmitOne directly.
func (r *Router) DrainTX(ctx context.Context) error {
	for {
		f, ok := r.TX.Pop()
		if !ok {
			return nil
		}
		if err := r.TransmitOne(ctx, f); err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			return err
		}
	}
}

// TransmitOne resolves the next hop for f's destination, verifies the
// bind site (if a guard is configured), and writes to the physical
// link, retrying up to maxHopRetries times on NAK.
func (r *Router) TransmitOne(ctx context.Context, f frame.Frame) error {
	nextHop, err := routingStep(r.self, f.Header.DstNode)
	if err != nil {
		atomic.AddUint64(&r.misroutes, 1)
		return err
	}

	site := addr.PipeOfIncoming(nextHop, r.self)
	pipe, ok := site.Pipe()
	if !ok {
		atomic.AddUint64(&r.misroutes, 1)
		return meshresult.New(meshresult.Unreachable, fmt.Sprintf("no bind site reaches next hop 0o%o", nextHop))
	}

	if r.guard != nil {
		localSite := addr.BindSiteParent
		if nextHop != addr.Parent(r.self) {
			localSite = addr.SiteOf(nextHop)
		}
		if err := r.guard.CheckBound(localSite, nextHop); err != nil {
			return err
		}
	}

	phys, err := r.derivePhys(nextHop, pipe)
	if err != nil {
		return meshresult.New(meshresult.Unreachable, err.Error())
	}

	var lastErr error
	for attempt := 0; attempt <= r.maxHopRetries; attempt++ {
		status, werr := r.link.Write(ctx, phys, f)
		if werr == nil && status == physlink.WriteOK {
			return nil
		}
		lastErr = werr
		if attempt < r.maxHopRetries {
			atomic.AddUint64(&r.retries, 1)
		}
	}
	atomic.AddUint64(&r.txFailures, 1)
	if lastErr != nil {
		return meshresult.New(meshresult.TXFail, lastErr.Error())
	}
	return meshresult.New(meshresult.TXFail, "physical link NAK after max retries")
}

// Misroutes reports how many received frames were dropped for having
// no valid route from this node.
func (r *Router) Misroutes() uint64 { return atomic.LoadUint64(&r.misroutes) }

// Retries reports how many physical-link write retries have occurred.
func (r *Router) Retries() uint64 { return atomic.LoadUint64(&r.retries) }

// TXFailures reports how many frames exhausted their retries without
// a successful physical-link write.
func (r *Router) TXFailures() uint64 { return atomic.LoadUint64(&r.txFailures) }

// Guard returns the router's AddressGuard, or nil if forwarding
// binding checks are disabled.
func (r *Router) Guard() *AddressGuard { return r.guard }

// Self returns the node's own logical address.
func (r *Router) Self() addr.LogicalAddress { return r.self }
