package physaddr

import (
	"testing"

	"rf24mesh/internal/addr"
)

func TestDeriveHardwareRejectsBadInputs(t *testing.T) {
	if _, err := DeriveHardware(addr.RSVDAddrInvalid, 0); err == nil {
		t.Error("DeriveHardware should reject an invalid logical address")
	}
	if _, err := DeriveHardware(addr.RootNode0, MaxNumPipes+1); err == nil {
		t.Error("DeriveHardware should reject an out-of-range pipe")
	}
	if _, err := DeriveHardware(addr.RootNode0, -1); err == nil {
		t.Error("DeriveHardware should reject a negative pipe")
	}
}

func TestDerivePortMatchesFormula(t *testing.T) {
	got, err := DerivePort(1000, 5, 2)
	if err != nil {
		t.Fatalf("DerivePort: %v", err)
	}
	want := Port(1000 + 5*(MaxNumPipes+1) + 2)
	if got != want {
		t.Fatalf("DerivePort = %d, want %d", got, want)
	}
}

func TestDerivationsAreInjective(t *testing.T) {
	seenHW := make(map[HardwareAddress]struct{})
	seenPort := make(map[Port]struct{})
	for a := 0; a <= 0xFFFF; a++ {
		la := addr.LogicalAddress(a)
		if !addr.IsValid(la) {
			continue
		}
		for pipe := 0; pipe <= MaxNumPipes; pipe++ {
			hw, err := DeriveHardware(la, pipe)
			if err != nil {
				t.Fatalf("DeriveHardware(0o%o, %d): %v", la, pipe, err)
			}
			if _, dup := seenHW[hw]; dup {
				t.Fatalf("hardware address collision at logical 0o%o pipe %d", la, pipe)
			}
			seenHW[hw] = struct{}{}

			port, err := DerivePort(DefaultBasePort, la, pipe)
			if err != nil {
				t.Fatalf("DerivePort(0o%o, %d): %v", la, pipe, err)
			}
			if _, dup := seenPort[port]; dup {
				t.Fatalf("port collision at logical 0o%o pipe %d", la, pipe)
			}
			seenPort[port] = struct{}{}
		}
	}
}

func TestParentPipeIsZero(t *testing.T) {
	hw, err := DeriveHardware(0o54, 0)
	if err != nil {
		t.Fatalf("DeriveHardware: %v", err)
	}
	if hw[2] != 0 {
		t.Fatalf("parent/TX pipe must encode as pipe 0, got %d", hw[2])
	}
}
