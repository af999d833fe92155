// Package physaddr derives the physical address a node binds its radio
// (or, in the simulator, a UDP socket) to for a given (logical address,
// pipe) pair. Both variants are bijections over the valid-address ×
// pipe space so no two bind sites ever collide on the wire.
package physaddr

import (
	"encoding/binary"
	"fmt"

	"rf24mesh/internal/addr"
)

// MaxNumPipes is the highest valid pipe index (CHILD_5); pipe 0 is the
// parent/TX pipe, so a node occupies MaxNumPipes+1 physical addresses.
const MaxNumPipes = 5

// Address is the physical address a Link writes a frame to: a
// HardwareAddress on real radio hardware, a Port in the UDP simulator.
// Both are opaque, comparable values a Link implementation recognizes
// and nothing else needs to inspect.
type Address interface {
	fmt.Stringer
	physicalAddress()
}

func checkInputs(a addr.LogicalAddress, pipe int) error {
	if !addr.IsValid(a) {
		return fmt.Errorf("physaddr: logical address 0o%o is not valid", a)
	}
	if pipe < 0 || pipe > MaxNumPipes {
		return fmt.Errorf("physaddr: pipe %d out of range [0,%d]", pipe, MaxNumPipes)
	}
	return nil
}

// HardwareAddress is the 40-bit value written to the radio's pipe
// address registers.
type HardwareAddress [5]byte

// hardwareBase is the fixed OUI-like prefix shared by every node; only
// the trailing three bytes vary with (address, pipe).
var hardwareBase = [2]byte{0xE7, 0x7E}

// DeriveHardware computes the 40-bit physical address for a node at
// logical address a listening on pipe. The mapping is injective: the
// pipe occupies its own byte and the logical address its own two
// bytes, so no two distinct (a, pipe) pairs can ever collide.
func DeriveHardware(a addr.LogicalAddress, pipe int) (HardwareAddress, error) {
	if err := checkInputs(a, pipe); err != nil {
		return HardwareAddress{}, err
	}
	var out HardwareAddress
	out[0], out[1] = hardwareBase[0], hardwareBase[1]
	out[2] = byte(pipe)
	binary.BigEndian.PutUint16(out[3:5], uint16(a))
	return out, nil
}

func (h HardwareAddress) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X", h[0], h[1], h[2], h[3], h[4])
}

func (HardwareAddress) physicalAddress() {}

// DefaultBasePort is the simulator's default UDP base port; real
// deployments may pick any free block of basePort..basePort+0xFFFF*6.
const DefaultBasePort = 24816

// Port is the simulator's stand-in for a physical address: a loopback
// UDP port number.
type Port int

func (p Port) String() string { return fmt.Sprintf("udp://127.0.0.1:%d", int(p)) }

func (Port) physicalAddress() {}

// DerivePort computes the simulator's UDP port for logical address a on
// pipe, rooted at basePort. Ports are assigned in blocks of
// MaxNumPipes+1 per logical address, so the mapping is injective by
// construction.
func DerivePort(basePort int, a addr.LogicalAddress, pipe int) (Port, error) {
	if err := checkInputs(a, pipe); err != nil {
		return 0, err
	}
	return Port(basePort + int(a)*(MaxNumPipes+1) + pipe), nil
}
