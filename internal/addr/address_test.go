package addr

import "testing"

func TestIsValid_InvalidDigits(t *testing.T) {
	invalid := []LogicalAddress{
		0o6666, 0o7001, 0o0701, 0o0071, 0o0007, 0o1536, 0o2371, 0o3722, 0o6243,
	}
	for _, a := range invalid {
		if IsValid(a) {
			t.Errorf("IsValid(0o%o) = true, want false", a)
		}
		if Parent(a) != RSVDAddrInvalid {
			t.Errorf("Parent(0o%o) = 0o%o, want INVALID", a, Parent(a))
		}
		if Level(a) != NodeLevelInvalid {
			t.Errorf("Level(0o%o) = %d, want NodeLevelInvalid", a, Level(a))
		}
	}
}

func TestIDAtLevel(t *testing.T) {
	a := LogicalAddress(0o54320)
	cases := []struct {
		level int
		want  Digit
	}{
		{0, DigitRoot},
		{1, DigitInvalid},
		{2, Digit(2)},
		{3, Digit(3)},
		{4, Digit(4)},
		{5, Digit(5)},
	}
	for _, c := range cases {
		if got := IDAtLevel(a, c.level); got != c.want {
			t.Errorf("IDAtLevel(0o54320, %d) = %d, want %d", c.level, got, c.want)
		}
	}
}

func TestIsDescendant(t *testing.T) {
	cases := []struct {
		p, c   LogicalAddress
		want   bool
		direct bool
	}{
		{0o1, 0o52341, true, false},
		{0o11, 0o42311, true, false},
		{0o13, 0o313, true, true},
		{0o11111, 0o11111, false, false},
	}
	for _, tc := range cases {
		if got := IsDescendant(tc.p, tc.c); got != tc.want {
			t.Errorf("IsDescendant(0o%o, 0o%o) = %v, want %v", tc.p, tc.c, got, tc.want)
		}
		if tc.want {
			if got := IsDirectDescendant(tc.p, tc.c); got != tc.direct {
				t.Errorf("IsDirectDescendant(0o%o, 0o%o) = %v, want %v", tc.p, tc.c, got, tc.direct)
			}
		}
	}
}

func TestDescendantClosure(t *testing.T) {
	c := LogicalAddress(0o313)
	lvl := Level(c)
	for l := 1; l < lvl; l++ {
		anc := AddressAtLevel(c, l)
		if !IsDescendant(anc, c) {
			t.Errorf("expected 0o%o to be a descendant of its level-%d ancestor 0o%o", c, l, anc)
		}
	}
	if IsDescendant(AddressAtLevel(c, lvl), c) {
		t.Errorf("expected 0o%o to not be its own descendant at its own level", c)
	}
}

func TestGetChild_Boundaries(t *testing.T) {
	wantByChild := map[BindSite]LogicalAddress{
		BindSiteChild1: 0o1,
		BindSiteChild2: 0o2,
		BindSiteChild3: 0o3,
		BindSiteChild4: 0o4,
		BindSiteChild5: 0o5,
	}
	for site, want := range wantByChild {
		if got := GetChild(RootNode0, site); got != want {
			t.Errorf("GetChild(root, %v) = 0o%o, want 0o%o", site, got, want)
		}
	}

	if got := GetChild(0o3333, BindSiteChild4); got != 0o43333 {
		t.Errorf("GetChild(0o3333, CHILD_4) = 0o%o, want 0o43333", got)
	}
	if got := GetChild(0o5555, BindSiteChild5); got != 0o55555 {
		t.Errorf("GetChild(0o5555, CHILD_5) = 0o%o, want 0o55555", got)
	}
	if got := GetChild(RSVDAddrInvalid, BindSiteChild1); got != RSVDAddrInvalid {
		t.Errorf("GetChild(INVALID, CHILD_1) = 0o%o, want INVALID", got)
	}
	if got := GetChild(0o6555, BindSiteChild1); got != RSVDAddrInvalid {
		t.Errorf("GetChild(0o6555, CHILD_1) = 0o%o, want INVALID", got)
	}
}

func TestParentChildRoundTrip(t *testing.T) {
	addrs := []LogicalAddress{0o1, 0o54, 0o313, 0o3333, 0o43333, 0o55555}
	for _, a := range addrs {
		if !IsValid(a) || IsRoot(a) {
			continue
		}
		p := Parent(a)
		site := SiteOf(a)
		rebuilt := GetChild(p, site)
		if rebuilt != a {
			t.Fatalf("GetChild(Parent(0o%o), SiteOf(0o%o)) = 0o%o, want 0o%o", a, a, rebuilt, a)
		}
		if Parent(rebuilt) != p {
			t.Errorf("Parent(rebuilt) = 0o%o, want 0o%o", Parent(rebuilt), p)
		}
	}
}

func TestIsRoot(t *testing.T) {
	if !IsRoot(RootNode0) {
		t.Error("RootNode0 should be root")
	}
	if IsRoot(0o77770) {
		t.Error("0o77770 has an out-of-alphabet digit and must be invalid, not root")
	}
	if IsRoot(0o1) {
		t.Error("0o1 is a level-1 address, not root")
	}
}

func TestIsReserved(t *testing.T) {
	for _, a := range []LogicalAddress{RSVDAddrMulticast, RSVDAddrRouted, RSVDAddrLookup, RSVDAddrInvalid} {
		if !IsReserved(a) {
			t.Errorf("IsReserved(0o%o) = false, want true", a)
		}
		if IsValid(a) {
			t.Errorf("IsValid(0o%o) = true, want false (reserved)", a)
		}
	}
}

func TestPipeOfIncoming(t *testing.T) {
	local := LogicalAddress(0o1)
	child := GetChild(local, BindSiteChild3)
	if got := PipeOfIncoming(local, child); got != BindSiteChild3 {
		t.Errorf("PipeOfIncoming(local, child3) = %v, want CHILD_3", got)
	}
	if got := PipeOfIncoming(local, RootNode0); got != BindSiteParent {
		t.Errorf("PipeOfIncoming(0o1, root) = %v, want PARENT", got)
	}
	stranger := LogicalAddress(0o52341)
	if got := PipeOfIncoming(local, stranger); got != BindSiteInvalid {
		t.Errorf("PipeOfIncoming(local, stranger) = %v, want INVALID", got)
	}
}

// Property — address validity alphabet, exhaustive over all 16-bit values.
func TestIsValidAlphabetProperty(t *testing.T) {
	for a := 0; a <= 0xFFFF; a++ {
		addr := LogicalAddress(a)
		wantValid := !IsReserved(addr)
		if wantValid {
			for l := 1; l <= maxLevel; l++ {
				if digitAt(addr, l) > 5 {
					wantValid = false
					break
				}
			}
		}
		if IsValid(addr) != wantValid {
			t.Fatalf("IsValid(0o%o) = %v, want %v", addr, IsValid(addr), wantValid)
		}
	}
}
