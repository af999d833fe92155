package router

import (
	"fmt"
	"sync"

	"rf24mesh/internal/addr"
	"rf24mesh/internal/meshresult"
)

// AddressGuard tracks which peer, if any, a bind site is currently
// bound to, and lets the router refuse to forward into a site whose
// live binding doesn't match the next hop the routing step computed.
// It is the router's defense against forwarding into a path the
// connection manager has already torn down.
type AddressGuard struct {
	mu    sync.RWMutex
	bound map[addr.BindSite]addr.LogicalAddress
}

// NewAddressGuard returns an empty guard; every site starts unbound.
func NewAddressGuard() *AddressGuard {
	return &AddressGuard{bound: make(map[addr.BindSite]addr.LogicalAddress)}
}

// Bind records that site is now bound to peer.
func (g *AddressGuard) Bind(site addr.BindSite, peer addr.LogicalAddress) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bound[site] = peer
}

// Unbind clears site's binding.
func (g *AddressGuard) Unbind(site addr.BindSite) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.bound, site)
}

// PeerAt returns the peer currently bound at site, if any.
func (g *AddressGuard) PeerAt(site addr.BindSite) (addr.LogicalAddress, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	peer, ok := g.bound[site]
	return peer, ok
}

// CheckBound fails with UNREACHABLE unless site is currently bound to
// exactly want.
func (g *AddressGuard) CheckBound(site addr.BindSite, want addr.LogicalAddress) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	got, ok := g.bound[site]
	if !ok {
		return meshresult.New(meshresult.Unreachable, fmt.Sprintf("bind site %s has no live binding", site))
	}
	if got != want {
		return meshresult.New(meshresult.Unreachable, fmt.Sprintf("bind site %s is bound to 0o%o, not 0o%o", site, got, want))
	}
	return nil
}
