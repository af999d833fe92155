// Package frame defines the on-air wire format shared by every node in
// the mesh, and the bounded FIFO queues the router uses to hold frames
// between the physical link and the application.
package frame

import (
	"encoding/binary"
	"fmt"

	"rf24mesh/internal/addr"
)

// PacketWidth is the fixed size of every on-air frame, header included.
const PacketWidth = 32

// HeaderWidth is the size of the fixed header at the front of a frame.
const HeaderWidth = 8

// PayloadWidth is the room left for message-type-specific data.
const PayloadWidth = PacketWidth - HeaderWidth

// MsgType tags what a frame's payload means.
type MsgType uint8

const (
	MsgTXNormal MsgType = iota + 1
	MsgTXRouted
	MsgTXMulticast
	MsgNetPing
	MsgNetPingAck
	MsgNetConnectRequest
	MsgNetConnectAck
	MsgNetConnectNack
	MsgNetDisconnect
)

// MsgAppBase is the first value in the range reserved for application
// payloads; MsgType values below it are core-reserved.
const MsgAppBase MsgType = 128

func (m MsgType) String() string {
	switch m {
	case MsgTXNormal:
		return "TX_NORMAL"
	case MsgTXRouted:
		return "TX_ROUTED"
	case MsgTXMulticast:
		return "TX_MULTICAST"
	case MsgNetPing:
		return "NET_PING"
	case MsgNetPingAck:
		return "NET_PING_ACK"
	case MsgNetConnectRequest:
		return "NET_CONNECT_REQUEST"
	case MsgNetConnectAck:
		return "NET_CONNECT_ACK"
	case MsgNetConnectNack:
		return "NET_CONNECT_NACK"
	case MsgNetDisconnect:
		return "NET_DISCONNECT"
	default:
		if m >= MsgAppBase {
			return fmt.Sprintf("APP(%d)", uint8(m))
		}
		return fmt.Sprintf("UNKNOWN(%d)", uint8(m))
	}
}

// IsApplication reports whether m falls in the range reserved for
// application-defined payloads rather than core network control.
func (m MsgType) IsApplication() bool {
	return m >= MsgAppBase
}

// Header is the fixed 8-byte prefix of every frame.
type Header struct {
	DstNode addr.LogicalAddress
	SrcNode addr.LogicalAddress
	MsgType MsgType
	// Reserved is zero on an originated frame; the router stores the
	// running hop count here when it forwards a frame.
	Reserved uint8
	// ID is caller-assigned and echoed back in ACK/NACK replies so the
	// caller can match a response to its request.
	ID uint16
}

// Frame is a complete 32-byte on-air packet: header plus payload, the
// trailing unused payload bytes always zero.
type Frame struct {
	Header  Header
	Payload [PayloadWidth]byte
}

// Marshal encodes f into its bit-exact little-endian wire form.
func (f Frame) Marshal() [PacketWidth]byte {
	var out [PacketWidth]byte
	binary.LittleEndian.PutUint16(out[0:2], uint16(f.Header.DstNode))
	binary.LittleEndian.PutUint16(out[2:4], uint16(f.Header.SrcNode))
	out[4] = byte(f.Header.MsgType)
	out[5] = f.Header.Reserved
	binary.LittleEndian.PutUint16(out[6:8], f.Header.ID)
	copy(out[HeaderWidth:], f.Payload[:])
	return out
}

// Unmarshal decodes a raw 32-byte wire frame. It fails only on a length
// mismatch; every byte pattern within a PacketWidth-sized slice decodes
// to some Frame.
func Unmarshal(b []byte) (Frame, error) {
	var f Frame
	if len(b) != PacketWidth {
		return f, fmt.Errorf("frame: got %d bytes, want %d", len(b), PacketWidth)
	}
	f.Header.DstNode = addr.LogicalAddress(binary.LittleEndian.Uint16(b[0:2]))
	f.Header.SrcNode = addr.LogicalAddress(binary.LittleEndian.Uint16(b[2:4]))
	f.Header.MsgType = MsgType(b[4])
	f.Header.Reserved = b[5]
	f.Header.ID = binary.LittleEndian.Uint16(b[6:8])
	copy(f.Payload[:], b[HeaderWidth:])
	return f, nil
}

// NewFrame builds a Frame from a header and a payload shorter than or
// equal to PayloadWidth; the remainder is zero-padded.
func NewFrame(dst, src addr.LogicalAddress, msgType MsgType, id uint16, payload []byte) (Frame, error) {
	if len(payload) > PayloadWidth {
		return Frame{}, fmt.Errorf("frame: payload of %d bytes exceeds %d-byte limit", len(payload), PayloadWidth)
	}
	f := Frame{Header: Header{DstNode: dst, SrcNode: src, MsgType: msgType, ID: id}}
	copy(f.Payload[:], payload)
	return f, nil
}
