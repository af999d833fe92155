// Package addr implements the logical-address algebra for the mesh's
// hierarchical octal tree: validity, parent/child relations, level
// extraction, and the pipe a given peer would arrive on.
//
// Every address is a 16-bit word read as five base-6 "octal" digits
// (named for the radio's five child slots plus the implicit root),
// d4 d3 d2 d1 d0, three bits each, d0 being the shallowest (level 1)
// digit. A node at level L has its lowest L digits non-zero and every
// digit above that zero. All functions here are total: an invalid
// input yields a sentinel, never a panic.
package addr

// LogicalAddress is a 16-bit hierarchical tree address.
type LogicalAddress uint16

// Digit is one base-6 position of a LogicalAddress, or one of the two
// sentinels below.
type Digit int8

const (
	// DigitInvalid is returned wherever a digit cannot be extracted.
	DigitInvalid Digit = -1
	// DigitRoot is returned by IDAtLevel(a, 0) for any valid a.
	DigitRoot Digit = 0
)

// BindSite names one of the radio's six pipes as seen from a node:
// the parent-listen pipe, the five child-listen pipes, or multicast.
type BindSite uint8

const (
	BindSiteInvalid BindSite = iota
	BindSiteParent
	BindSiteChild1
	BindSiteChild2
	BindSiteChild3
	BindSiteChild4
	BindSiteChild5
	BindSiteMulticast
)

func (b BindSite) String() string {
	switch b {
	case BindSiteParent:
		return "PARENT"
	case BindSiteChild1:
		return "CHILD_1"
	case BindSiteChild2:
		return "CHILD_2"
	case BindSiteChild3:
		return "CHILD_3"
	case BindSiteChild4:
		return "CHILD_4"
	case BindSiteChild5:
		return "CHILD_5"
	case BindSiteMulticast:
		return "MULTICAST"
	default:
		return "INVALID"
	}
}

// IsChildSite reports whether b names one of the five child pipes.
func (b BindSite) IsChildSite() bool {
	return b >= BindSiteChild1 && b <= BindSiteChild5
}

// ChildDigit returns the 1..5 digit a child bind site occupies, or
// DigitInvalid if b does not name a child site.
func (b BindSite) ChildDigit() Digit {
	if !b.IsChildSite() {
		return DigitInvalid
	}
	return Digit(b - BindSiteChild1 + 1)
}

// Pipe returns the radio RX pipe index (0..5) bound to b. Pipe 0 is
// the parent-listen/TX pipe; pipes 1..5 are CHILD_1..CHILD_5.
func (b BindSite) Pipe() (pipe int, ok bool) {
	switch {
	case b == BindSiteParent:
		return 0, true
	case b.IsChildSite():
		return int(b - BindSiteChild1 + 1), true
	default:
		return 0, false
	}
}

// The root address and the reserved sentinel addresses. None of the
// RSVDAddr* sentinels is ever a routable destination; IsValid is false
// for all of them.
const (
	RootNode0 LogicalAddress = 0o0

	RSVDAddrMulticast LogicalAddress = 0o77777
	RSVDAddrRouted    LogicalAddress = 0o70000
	RSVDAddrLookup    LogicalAddress = 0o77700
	RSVDAddrInvalid   LogicalAddress = 0xFFFF
)

// NodeLevelInvalid is returned by Level for any address that fails
// IsValid.
const NodeLevelInvalid int = -1

const maxLevel = 5

// digitAt returns the raw 3-bit nibble at octal position l (1-indexed,
// 1..5), without any validity checks.
func digitAt(a LogicalAddress, l int) uint8 {
	return uint8((a >> uint((l - 1) * 3)) & 0x7)
}

// IsReserved reports whether a is one of the named sentinel values.
func IsReserved(a LogicalAddress) bool {
	switch a {
	case RSVDAddrMulticast, RSVDAddrRouted, RSVDAddrLookup, RSVDAddrInvalid:
		return true
	default:
		return false
	}
}

// IsValid reports whether every octal digit of a is in {0..5} and a
// is not a reserved sentinel.
func IsValid(a LogicalAddress) bool {
	if IsReserved(a) {
		return false
	}
	for l := 1; l <= maxLevel; l++ {
		if digitAt(a, l) > 5 {
			return false
		}
	}
	return true
}

// Level returns the 1-based position of a's highest non-zero octal
// digit (0 for the root), or NodeLevelInvalid if a is not valid.
func Level(a LogicalAddress) int {
	if !IsValid(a) {
		return NodeLevelInvalid
	}
	for l := maxLevel; l >= 1; l-- {
		if digitAt(a, l) != 0 {
			return l
		}
	}
	return 0
}

// IsRoot reports whether a is valid and has level 0.
func IsRoot(a LogicalAddress) bool {
	return IsValid(a) && Level(a) == 0
}

// IDAtLevel extracts the digit of a at level l. The level-0 ancestor
// of any valid address is the root, so l==0 always yields DigitRoot;
// 1<=l<=Level(a) yields the digit itself; anything else is
// DigitInvalid.
func IDAtLevel(a LogicalAddress, l int) Digit {
	if !IsValid(a) {
		return DigitInvalid
	}
	if l == 0 {
		return DigitRoot
	}
	lvl := Level(a)
	if l < 1 || l > lvl {
		return DigitInvalid
	}
	d := digitAt(a, l)
	if d < 1 || d > 5 {
		return DigitInvalid
	}
	return Digit(d)
}

// Parent clears a's highest non-zero octal digit (the one at
// Level(a)). The parent of the root is RSVDAddrInvalid.
func Parent(a LogicalAddress) LogicalAddress {
	if !IsValid(a) {
		return RSVDAddrInvalid
	}
	lvl := Level(a)
	if lvl == 0 {
		return RSVDAddrInvalid
	}
	mask := LogicalAddress(0x7) << uint((lvl-1)*3)
	return a &^ mask
}

// AddressAtLevel returns the ancestor of a at level l: the prefix of
// a's digits up to and including position l, with everything above
// cleared. It returns RSVDAddrInvalid when l is out of [0, Level(a)].
func AddressAtLevel(a LogicalAddress, l int) LogicalAddress {
	if !IsValid(a) {
		return RSVDAddrInvalid
	}
	lvl := Level(a)
	if l < 0 || l > lvl {
		return RSVDAddrInvalid
	}
	if l == 0 {
		return RootNode0
	}
	mask := LogicalAddress(1)<<uint(l*3) - 1
	return a & mask
}

// IsDescendant reports whether c is a strict descendant of p: both
// valid, p != c, and p is exactly the ancestor of c at p's own level.
// The root is an ancestor of every other valid address.
func IsDescendant(p, c LogicalAddress) bool {
	if !IsValid(p) || !IsValid(c) || p == c {
		return false
	}
	return AddressAtLevel(c, Level(p)) == p
}

// IsDirectDescendant reports whether c is exactly one level below p
// in the tree (c's parent is p).
func IsDirectDescendant(p, c LogicalAddress) bool {
	return IsDescendant(p, c) && Level(c) == Level(p)+1
}

// GetChild inserts site's child digit at the next level below parent.
// It fails (returns RSVDAddrInvalid) when parent is invalid, site does
// not name a child slot, or parent is already at the maximum depth.
func GetChild(parent LogicalAddress, site BindSite) LogicalAddress {
	if !IsValid(parent) || !site.IsChildSite() {
		return RSVDAddrInvalid
	}
	lvl := Level(parent)
	if lvl >= maxLevel {
		return RSVDAddrInvalid
	}
	digit := LogicalAddress(site.ChildDigit())
	return parent | (digit << uint(lvl*3))
}

// SiteOf returns the bind site under which a's parent would have
// generated a, i.e. the child slot matching a's own lowest digit.
// It returns BindSiteInvalid for the root or an invalid address.
func SiteOf(a LogicalAddress) BindSite {
	lvl := Level(a)
	if lvl <= 0 {
		return BindSiteInvalid
	}
	d := IDAtLevel(a, lvl)
	if d < 1 || d > 5 {
		return BindSiteInvalid
	}
	return BindSiteChild1 + BindSite(d-1)
}

// PipeOfIncoming returns the bind site on local that would receive
// traffic from src: PARENT if src is local's parent, CHILD_k if src is
// the child of local occupying slot k, or BindSiteInvalid otherwise.
func PipeOfIncoming(local, src LogicalAddress) BindSite {
	if !IsValid(local) || !IsValid(src) {
		return BindSiteInvalid
	}
	if src == Parent(local) {
		return BindSiteParent
	}
	for site := BindSiteChild1; site <= BindSiteChild5; site++ {
		if GetChild(local, site) == src {
			return site
		}
	}
	return BindSiteInvalid
}
