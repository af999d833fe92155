// Package physlink defines the Physical Link contract the router binds
// to: something that can send a 32-byte frame to a physical address and
// hand back inbound frames per pipe. The in-process UDP simulator (see
// the simlink subpackage) implements it; this module contains no
// hardware nRF24L01 implementation.
package physlink

import (
	"context"
	"fmt"

	"rf24mesh/internal/frame"
	"rf24mesh/internal/physaddr"
)

// DataRate mirrors the radio's over-the-air bit rate options.
type DataRate uint8

const (
	DataRate250kbps DataRate = iota
	DataRate1Mbps
	DataRate2Mbps
)

func (d DataRate) String() string {
	switch d {
	case DataRate250kbps:
		return "250kbps"
	case DataRate1Mbps:
		return "1Mbps"
	case DataRate2Mbps:
		return "2Mbps"
	default:
		return "unknown"
	}
}

// PowerAmplitude mirrors the radio's transmit power levels.
type PowerAmplitude uint8

const (
	PALow PowerAmplitude = iota
	PAMed
	PAHigh
	PAMax
)

func (p PowerAmplitude) String() string {
	switch p {
	case PALow:
		return "LOW"
	case PAMed:
		return "MED"
	case PAHigh:
		return "HIGH"
	case PAMax:
		return "MAX"
	default:
		return "unknown"
	}
}

// WriteStatus reports the outcome of a Link.Write call.
type WriteStatus uint8

const (
	WriteOK WriteStatus = iota
	WriteNAK
	WriteTimeout
)

func (s WriteStatus) String() string {
	switch s {
	case WriteOK:
		return "OK"
	case WriteNAK:
		return "NAK"
	case WriteTimeout:
		return "TIMEOUT"
	default:
		return "unknown"
	}
}

// ErrChannelOutOfRange is returned by SetChannel for a channel outside
// the radio's 0..125 range.
var ErrChannelOutOfRange = fmt.Errorf("physlink: RF channel out of range [0,125]")

// MaxChannel is the highest RF channel accepted by SetChannel.
const MaxChannel = 125

// Inbound is one frame delivered by Poll, tagged with the pipe it
// arrived on.
type Inbound struct {
	Pipe  int
	Frame frame.Frame
}

// Link is the contract the router's physical layer must satisfy: bind
// six pipe addresses, transmit a frame to a physical address, and
// surface inbound frames per pipe. Implementations must be safe for
// concurrent Write/Poll from a single router goroutine calling each in
// turn; they need not support concurrent callers of the same method.
type Link interface {
	// Init binds the link's six pipe addresses (index 0 is the
	// parent/TX pipe, 1..5 are CHILD_1..CHILD_5).
	Init(pipeAddrs [6]physaddr.Address) error

	// Write transmits f to dst and reports how the attempt concluded.
	Write(ctx context.Context, dst physaddr.Address, f frame.Frame) (WriteStatus, error)

	// Poll returns the next inbound frame, if one is queued, without
	// blocking.
	Poll() (Inbound, bool)

	SetChannel(channel uint8) error
	SetDataRate(rate DataRate) error
	SetPowerAmplitude(level PowerAmplitude) error

	// Close releases any underlying resources (sockets, device
	// handles). A closed Link must not be reused.
	Close() error
}
