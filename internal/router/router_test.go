package router

import (
	"context"
	"sync"
	"testing"

	"rf24mesh/internal/addr"
	"rf24mesh/internal/frame"
	"rf24mesh/internal/meshresult"
	"rf24mesh/internal/physaddr"
	"rf24mesh/internal/physlink"
)

const fakeBasePort = 19000

// fakeNetwork wires a set of in-process routers together without any
// real transport, so multi-hop forwarding can be exercised
// deterministically and fast.
type fakeNetwork struct {
	mu     sync.Mutex
	routes map[physaddr.Port]func(frame.Frame) error
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{routes: make(map[physaddr.Port]func(frame.Frame) error)}
}

func (n *fakeNetwork) register(self addr.LogicalAddress, pipe int, fn func(frame.Frame) error) {
	port, err := physaddr.DerivePort(fakeBasePort, self, pipe)
	if err != nil {
		panic(err)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes[port] = fn
}

func derivePhysFor(net *fakeNetwork) PhysAddrFunc {
	return func(peer addr.LogicalAddress, pipe int) (physaddr.Address, error) {
		return physaddr.DerivePort(fakeBasePort, peer, pipe)
	}
}

type fakeLink struct{ net *fakeNetwork }

func (l *fakeLink) Init([6]physaddr.Address) error { return nil }

func (l *fakeLink) Write(ctx context.Context, dst physaddr.Address, f frame.Frame) (physlink.WriteStatus, error) {
	port, ok := dst.(physaddr.Port)
	if !ok {
		return physlink.WriteNAK, meshresult.New(meshresult.InvalidAddress, "not a fake-network port")
	}
	l.net.mu.Lock()
	fn, ok := l.net.routes[port]
	l.net.mu.Unlock()
	if !ok {
		return physlink.WriteNAK, meshresult.New(meshresult.Unreachable, "no peer registered at port")
	}
	if err := fn(f); err != nil {
		return physlink.WriteNAK, err
	}
	return physlink.WriteOK, nil
}

func (l *fakeLink) Poll() (physlink.Inbound, bool)              { return physlink.Inbound{}, false }
func (l *fakeLink) SetChannel(uint8) error                      { return nil }
func (l *fakeLink) SetDataRate(physlink.DataRate) error         { return nil }
func (l *fakeLink) SetPowerAmplitude(physlink.PowerAmplitude) error { return nil }
func (l *fakeLink) Close() error                                { return nil }

func newTestRouter(t *testing.T, net *fakeNetwork, self addr.LogicalAddress) *Router {
	t.Helper()
	r, err := New(self, &fakeLink{net: net}, derivePhysFor(net), Config{RXQueueSize: 8, TXQueueSize: 8})
	if err != nil {
		t.Fatalf("New(0o%o): %v", self, err)
	}
	for pipe := 0; pipe <= physaddr.MaxNumPipes; pipe++ {
		p := pipe
		net.register(self, p, func(f frame.Frame) error { return r.OnFrame(p, f) })
	}
	return r
}

func drainUntilQuiet(t *testing.T, ctx context.Context, routers []*Router) {
	t.Helper()
	for round := 0; round < 10; round++ {
		progressed := false
		for _, r := range routers {
			for r.TX.Len() > 0 {
				progressed = true
				if err := r.DrainTX(ctx); err != nil {
					t.Fatalf("DrainTX on 0o%o: %v", r.Self(), err)
				}
			}
		}
		if !progressed {
			return
		}
	}
	t.Fatal("forwarding did not settle within the round budget")
}

func TestWriteToSelfDeliversLocally(t *testing.T) {
	net := newFakeNetwork()
	r := newTestRouter(t, net, 0o54)

	if err := r.Write(0o54, []byte("hi"), frame.MsgTXNormal, 1); err != nil {
		t.Fatalf("Write: %v", err)
	}
	f, ok := r.RX.Pop()
	if !ok {
		t.Fatal("expected a locally delivered frame")
	}
	if f.Header.SrcNode != 0o54 || f.Header.DstNode != 0o54 {
		t.Fatalf("unexpected header: %+v", f.Header)
	}
}

func TestWriteUnreachableFromInvalidTree(t *testing.T) {
	net := newFakeNetwork()
	r := newTestRouter(t, net, addr.RootNode0)

	err := r.Write(addr.RSVDAddrInvalid, nil, frame.MsgTXNormal, 1)
	if err == nil {
		t.Fatal("expected an error writing to an invalid destination")
	}
}

func TestMultiHopWriteScenario(t *testing.T) {
	// Tree: 000 (root), 001, 011, 0111.
	net := newFakeNetwork()
	root := newTestRouter(t, net, addr.RootNode0)
	n1 := newTestRouter(t, net, 0o1)
	n11 := newTestRouter(t, net, 0o11)
	n111 := newTestRouter(t, net, 0o111)

	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	if err := n111.Write(addr.RootNode0, payload, frame.MsgTXNormal, 0xBEEF); err != nil {
		t.Fatalf("Write: %v", err)
	}

	ctx := context.Background()
	drainUntilQuiet(t, ctx, []*Router{root, n1, n11, n111})

	if root.RX.Len() != 1 {
		t.Fatalf("root RX depth = %d, want 1", root.RX.Len())
	}
	got, _ := root.RX.Pop()
	if got.Header.SrcNode != 0o111 || got.Header.DstNode != addr.RootNode0 {
		t.Fatalf("unexpected header at root: %+v", got.Header)
	}
	if got.Header.ID != 0xBEEF {
		t.Fatalf("ID = 0x%x, want 0xBEEF", got.Header.ID)
	}
	for i, b := range payload {
		if got.Payload[i] != b {
			t.Fatalf("payload[%d] = 0x%x, want 0x%x", i, got.Payload[i], b)
		}
	}

	// Intermediate hops must never surface the frame to their own RX queue.
	for _, intermediate := range []*Router{n1, n11} {
		if intermediate.RX.Len() != 0 {
			t.Fatalf("intermediate node 0o%o leaked a frame into its RX queue", intermediate.Self())
		}
	}
	if got.Header.Reserved > DefaultMaxHops {
		t.Fatalf("hop count %d exceeded max hops %d", got.Header.Reserved, DefaultMaxHops)
	}
}

func TestOnFrameForwardsCrossBranchFrame(t *testing.T) {
	// 0o11 is neither an ancestor nor a descendant of 0o22 (cousins under
	// different root children), but it still sits on the path up towards
	// their common ancestor and must forward, not drop, the frame.
	net := newFakeNetwork()
	r := newTestRouter(t, net, 0o11)

	f, _ := frame.NewFrame(0o22, 0o111, frame.MsgTXNormal, 1, nil)
	if err := r.OnFrame(1, f); err != nil {
		t.Fatalf("OnFrame: unexpected error forwarding a cross-branch frame: %v", err)
	}
	if r.TX.Len() != 1 {
		t.Fatalf("TX depth = %d, want 1 (frame should be forwarded on)", r.TX.Len())
	}
	if r.Misroutes() != 0 {
		t.Fatalf("Misroutes() = %d, want 0", r.Misroutes())
	}
}

func TestBranchingTopologyDeliversAcrossBranches(t *testing.T) {
	// Tree: 0o0 (root) -> {0o1, 0o2, 0o3}; 0o1 -> 0o11 -> 0o111; 0o2 -> 0o22.
	// 0o111 and 0o22 are cousins: neither is an ancestor of the other, so
	// delivery must climb from 0o111 up through 0o11, 0o1, and the root
	// before descending again to 0o2 and finally 0o22.
	net := newFakeNetwork()
	root := newTestRouter(t, net, addr.RootNode0)
	n1 := newTestRouter(t, net, 0o1)
	n11 := newTestRouter(t, net, 0o11)
	n111 := newTestRouter(t, net, 0o111)
	n2 := newTestRouter(t, net, 0o2)
	n22 := newTestRouter(t, net, 0o22)

	payload := []byte("cross-branch")
	if err := n111.Write(0o22, payload, frame.MsgTXNormal, 0x1234); err != nil {
		t.Fatalf("Write: %v", err)
	}

	ctx := context.Background()
	drainUntilQuiet(t, ctx, []*Router{root, n1, n11, n111, n2, n22})

	if n22.RX.Len() != 1 {
		t.Fatalf("0o22 RX depth = %d, want 1", n22.RX.Len())
	}
	got, _ := n22.RX.Pop()
	if got.Header.SrcNode != 0o111 || got.Header.DstNode != 0o22 {
		t.Fatalf("unexpected header at 0o22: %+v", got.Header)
	}
	for i, b := range payload {
		if got.Payload[i] != b {
			t.Fatalf("payload[%d] = 0x%x, want 0x%x", i, got.Payload[i], b)
		}
	}

	for _, intermediate := range []*Router{n11, n1, root, n2} {
		if intermediate.RX.Len() != 0 {
			t.Fatalf("intermediate node 0o%o leaked a frame into its RX queue", intermediate.Self())
		}
	}
}

func TestOnFrameDropsWhenHopLimitExceeded(t *testing.T) {
	net := newFakeNetwork()
	r := newTestRouter(t, net, 0o1)

	f, _ := frame.NewFrame(0o54321, addr.RootNode0, frame.MsgTXNormal, 1, nil)
	f.Header.Reserved = DefaultMaxHops
	if err := r.OnFrame(0, f); err == nil {
		t.Fatal("expected hop-limit error")
	}
	if r.TX.Len() != 0 {
		t.Fatal("a hop-limit-exceeded frame must not be queued for further forwarding")
	}
}

func TestGuardBlocksForwardingIntoUnboundSite(t *testing.T) {
	net := newFakeNetwork()
	guard := NewAddressGuard()
	child := newTestRouterWithGuard(t, net, addr.RootNode0, guard)
	newTestRouter(t, net, 0o1)

	// root has CHILD_1 unbound in the guard; forwarding to 0o1 must fail.
	if err := child.Write(0o1, nil, frame.MsgTXNormal, 1); err != nil {
		t.Fatalf("Write: %v", err)
	}
	err := child.DrainTX(context.Background())
	if err == nil {
		t.Fatal("expected guard to block transmission to an unbound child")
	}

	guard.Bind(addr.BindSiteChild1, 0o1)
	if err := child.Write(0o1, nil, frame.MsgTXNormal, 2); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := child.DrainTX(context.Background()); err != nil {
		t.Fatalf("DrainTX after binding: %v", err)
	}
}

func newTestRouterWithGuard(t *testing.T, net *fakeNetwork, self addr.LogicalAddress, guard *AddressGuard) *Router {
	t.Helper()
	r, err := New(self, &fakeLink{net: net}, derivePhysFor(net), Config{RXQueueSize: 8, TXQueueSize: 8, Guard: guard})
	if err != nil {
		t.Fatalf("New(0o%o): %v", self, err)
	}
	for pipe := 0; pipe <= physaddr.MaxNumPipes; pipe++ {
		p := pipe
		net.register(self, p, func(f frame.Frame) error { return r.OnFrame(p, f) })
	}
	return r
}
