// Package simlink implements the physlink.Link contract over loopback
// UDP sockets, standing in for the nRF24L01 radio during in-process
// multi-node tests: each node binds six ports, one per pipe, and a
// write is a single UDP datagram to the destination's derived port.
package simlink

import (
	"context"
	"fmt"
	"net"
	"sync"

	"rf24mesh/internal/addr"
	"rf24mesh/internal/frame"
	"rf24mesh/internal/physaddr"
	"rf24mesh/internal/physlink"
)

// inboxCapacity bounds how many frames, across all six pipes' read
// goroutines, can wait for Poll before newly arriving frames are dropped.
const inboxCapacity = 64

// SimLink is a physlink.Link backed by six loopback UDP sockets, one
// per pipe, addressed via physaddr.DerivePort.
type SimLink struct {
	basePort int
	self     addr.LogicalAddress

	mu      sync.Mutex
	conns   [physaddr.MaxNumPipes + 1]*net.UDPConn
	closed  bool
	stopCh  chan struct{}
	inbound chan physlink.Inbound

	channel  uint8
	dataRate physlink.DataRate
	power    physlink.PowerAmplitude
}

// New returns a SimLink for self, whose pipe ports are derived from
// basePort via physaddr.DerivePort. Init must be called before use.
func New(basePort int, self addr.LogicalAddress) *SimLink {
	return &SimLink{
		basePort: basePort,
		self:     self,
		stopCh:   make(chan struct{}),
		inbound:  make(chan physlink.Inbound, inboxCapacity),
	}
}

// Init binds all six of self's pipe ports and starts a read goroutine
// per pipe. pipeAddrs is accepted to satisfy physlink.Link but is
// unused: the simulator derives its own ports from (self, pipe) rather
// than trusting caller-supplied addresses.
func (s *SimLink) Init(pipeAddrs [6]physaddr.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for pipe := 0; pipe <= physaddr.MaxNumPipes; pipe++ {
		port, err := physaddr.DerivePort(s.basePort, s.self, pipe)
		if err != nil {
			return fmt.Errorf("simlink: deriving port for pipe %d: %w", pipe, err)
		}
		udpAddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: int(port)}
		conn, err := net.ListenUDP("udp", udpAddr)
		if err != nil {
			return fmt.Errorf("simlink: binding pipe %d to %s: %w", pipe, udpAddr, err)
		}
		s.conns[pipe] = conn
		go s.readLoop(pipe, conn)
	}
	return nil
}

func (s *SimLink) readLoop(pipe int, conn *net.UDPConn) {
	buf := make([]byte, frame.PacketWidth)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				continue
			}
		}
		if n != frame.PacketWidth {
			continue
		}
		f, err := frame.Unmarshal(buf[:n])
		if err != nil {
			continue
		}
		select {
		case s.inbound <- physlink.Inbound{Pipe: pipe, Frame: f}:
		default:
			// Inbox full; the frame is discarded before the router
			// sees it, and the drop is not counted anywhere.
		}
	}
}

// Write sends f as a single UDP datagram to dst, which must be a
// physaddr.Port. Loopback UDP delivery is effectively immediate and
// connectionless, so Write always reports WriteOK once the datagram is
// handed to the kernel; a vanished peer surfaces later as a missed
// ping, the same as on real hardware.
func (s *SimLink) Write(ctx context.Context, dst physaddr.Address, f frame.Frame) (physlink.WriteStatus, error) {
	port, ok := dst.(physaddr.Port)
	if !ok {
		return physlink.WriteNAK, fmt.Errorf("simlink: destination %v is not a simulator port", dst)
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return physlink.WriteNAK, fmt.Errorf("simlink: link is closed")
	}

	udpAddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: int(port)}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return physlink.WriteTimeout, err
	}
	defer conn.Close()

	wire := f.Marshal()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if _, err := conn.Write(wire[:]); err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return physlink.WriteTimeout, err
		}
		return physlink.WriteNAK, err
	}
	return physlink.WriteOK, nil
}

// Poll returns the next inbound frame without blocking.
func (s *SimLink) Poll() (physlink.Inbound, bool) {
	select {
	case in := <-s.inbound:
		return in, true
	default:
		return physlink.Inbound{}, false
	}
}

func (s *SimLink) SetChannel(channel uint8) error {
	if channel > physlink.MaxChannel {
		return physlink.ErrChannelOutOfRange
	}
	s.mu.Lock()
	s.channel = channel
	s.mu.Unlock()
	return nil
}

func (s *SimLink) SetDataRate(rate physlink.DataRate) error {
	s.mu.Lock()
	s.dataRate = rate
	s.mu.Unlock()
	return nil
}

func (s *SimLink) SetPowerAmplitude(level physlink.PowerAmplitude) error {
	s.mu.Lock()
	s.power = level
	s.mu.Unlock()
	return nil
}

// Close stops every pipe's read goroutine and releases its socket.
func (s *SimLink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.stopCh)
	var firstErr error
	for _, conn := range s.conns {
		if conn == nil {
			continue
		}
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
