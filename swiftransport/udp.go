package swiftransport

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
)

// UDPOptions tune the UDP transport.
type UDPOptions struct {
	ReadBatch   int // messages per ReadBatch call (default 32)
	MaxDatagram int // receive buffer per message (default 2048)
	ReadBuffer  int // socket receive buffer in bytes (default 4 MiB)
}

func (o *UDPOptions) setDefaults() {
	if o.ReadBatch <= 0 {
		o.ReadBatch = 32
	}
	if o.MaxDatagram <= 0 {
		o.MaxDatagram = 2048
	}
	if o.ReadBuffer <= 0 {
		o.ReadBuffer = 4 << 20
	}
}

// pollInterval bounds how long a read ignores context cancellation.
const pollInterval = 100 * time.Millisecond

type udpConn struct {
	c         *net.UDPConn
	pc        *ipv4.PacketConn
	connected bool

	mu   sync.Mutex
	peer net.Addr

	msgs    []ipv4.Message
	pending [][]byte
}

// DialUDP returns a Conn sending to addr. The OTI travels as the first
// datagram, as in the plain UDP demo protocol.
func DialUDP(addr string, opts UDPOptions) (Conn, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	c, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, err
	}
	return newUDPConn(c, true, opts), nil
}

// ListenUDP returns a Conn receiving on addr. It replies to the last peer
// heard from.
func ListenUDP(addr string, opts UDPOptions) (Conn, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	c, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}
	return newUDPConn(c, false, opts), nil
}

func newUDPConn(c *net.UDPConn, connected bool, opts UDPOptions) *udpConn {
	opts.setDefaults()
	// Best effort: small buffers only cost more losses.
	_ = setReadBuffer(c, opts.ReadBuffer)
	u := &udpConn{
		c:         c,
		pc:        ipv4.NewPacketConn(c),
		connected: connected,
		msgs:      make([]ipv4.Message, opts.ReadBatch),
	}
	for i := range u.msgs {
		u.msgs[i].Buffers = [][]byte{make([]byte, opts.MaxDatagram)}
	}
	return u
}

func (u *udpConn) LocalAddr() net.Addr { return u.c.LocalAddr() }

func (u *udpConn) SendControl(_ context.Context, b []byte) error { return u.SendDatagram(b) }

func (u *udpConn) ReceiveControl(ctx context.Context) ([]byte, error) {
	return u.ReceiveDatagram(ctx)
}

func (u *udpConn) SendDatagram(b []byte) error {
	var err error
	if u.connected {
		_, err = u.c.Write(b)
	} else {
		u.mu.Lock()
		peer := u.peer
		u.mu.Unlock()
		if peer == nil {
			return ErrNoPeer
		}
		_, err = u.c.WriteTo(b, peer)
	}
	if errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	return err
}

// ReceiveDatagram returns datagrams from the last batch read before reading
// a new one. It is not safe for concurrent use.
func (u *udpConn) ReceiveDatagram(ctx context.Context) ([]byte, error) {
	for len(u.pending) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := u.c.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
			return nil, err
		}
		n, err := u.pc.ReadBatch(u.msgs, 0)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil, ErrClosed
			}
			return nil, err
		}
		for _, m := range u.msgs[:n] {
			u.pending = append(u.pending, append([]byte(nil), m.Buffers[0][:m.N]...))
			if !u.connected && m.Addr != nil {
				u.mu.Lock()
				u.peer = m.Addr
				u.mu.Unlock()
			}
		}
	}
	b := u.pending[0]
	u.pending[0] = nil
	u.pending = u.pending[1:]
	return b, nil
}

func (u *udpConn) Close() error { return u.c.Close() }

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
