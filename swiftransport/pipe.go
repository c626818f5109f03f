package swiftransport

import (
	"context"
	"sync"
)

// Pipe returns two connected in-memory Conns. Datagrams are queued up to
// depth per direction and dropped beyond it.
func Pipe(depth int) (Conn, Conn) {
	ab := newPipeQueue(depth)
	ba := newPipeQueue(depth)
	return &pipeConn{out: ab, in: ba}, &pipeConn{out: ba, in: ab}
}

type pipeQueue struct {
	ctrl  chan []byte
	data  chan []byte
	done  chan struct{}
	close sync.Once
}

func newPipeQueue(depth int) *pipeQueue {
	return &pipeQueue{
		ctrl: make(chan []byte, 4),
		data: make(chan []byte, depth),
		done: make(chan struct{}),
	}
}

type pipeConn struct {
	out, in *pipeQueue
}

func (p *pipeConn) SendControl(ctx context.Context, b []byte) error {
	select {
	case p.out.ctrl <- append([]byte(nil), b...):
		return nil
	case <-p.out.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeConn) ReceiveControl(ctx context.Context) ([]byte, error) {
	return receive(ctx, p.in.ctrl, p.in.done)
}

func (p *pipeConn) SendDatagram(b []byte) error {
	select {
	case <-p.out.done:
		return ErrClosed
	default:
	}
	select {
	case p.out.data <- append([]byte(nil), b...):
	default:
	}
	return nil
}

func (p *pipeConn) ReceiveDatagram(ctx context.Context) ([]byte, error) {
	return receive(ctx, p.in.data, p.in.done)
}

// receive drains queued messages before reporting a closed peer.
func receive(ctx context.Context, q <-chan []byte, done <-chan struct{}) ([]byte, error) {
	select {
	case b := <-q:
		return b, nil
	default:
	}
	select {
	case b := <-q:
		return b, nil
	case <-done:
		select {
		case b := <-q:
			return b, nil
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeConn) Close() error {
	p.out.close.Do(func() { close(p.out.done) })
	p.in.close.Do(func() { close(p.in.done) })
	return nil
}
