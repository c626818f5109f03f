package swiftransport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	quic "github.com/quic-go/quic-go"
)

// ErrDatagramTooLarge is returned when a datagram exceeds what the QUIC
// path can carry.
var ErrDatagramTooLarge = errors.New("swiftransport: datagram too large")

// maxControlSize bounds a control message read from a stream.
const maxControlSize = 64 << 10

func quicConfig(keepAlive time.Duration) *quic.Config {
	return &quic.Config{
		EnableDatagrams: true,
		KeepAlivePeriod: keepAlive,
		MaxIdleTimeout:  90 * time.Second,
	}
}

type quicConn struct {
	conn *quic.Conn
}

// DialQUIC connects to a QUIC receiver. Control messages travel on their
// own unidirectional-use streams, symbols in DATAGRAM frames.
func DialQUIC(ctx context.Context, addr, alpn string, insecure bool) (Conn, error) {
	tlsConf := &tls.Config{InsecureSkipVerify: insecure, NextProtos: []string{alpn}}
	// Frequent PINGs keep datagram-only flows from idling out.
	conn, err := quic.DialAddr(ctx, addr, tlsConf, quicConfig(50*time.Millisecond))
	if err != nil {
		return nil, err
	}
	return &quicConn{conn: conn}, nil
}

func (q *quicConn) SendControl(ctx context.Context, b []byte) error {
	str, err := q.conn.OpenStreamSync(ctx)
	if err != nil {
		return err
	}
	if _, err := str.Write(b); err != nil {
		return err
	}
	return str.Close()
}

func (q *quicConn) ReceiveControl(ctx context.Context) ([]byte, error) {
	str, err := q.conn.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}
	b, err := io.ReadAll(io.LimitReader(str, maxControlSize))
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (q *quicConn) SendDatagram(b []byte) error {
	err := q.conn.SendDatagram(b)
	var dtle *quic.DatagramTooLargeError
	if errors.As(err, &dtle) {
		return fmt.Errorf("%w: %d bytes, path allows %d", ErrDatagramTooLarge, len(b), dtle.MaxDatagramPayloadSize)
	}
	return err
}

func (q *quicConn) ReceiveDatagram(ctx context.Context) ([]byte, error) {
	b, err := q.conn.ReceiveDatagram(ctx)
	if err != nil && q.conn.Context().Err() != nil && ctx.Err() == nil {
		return nil, ErrClosed
	}
	return b, err
}

func (q *quicConn) Close() error { return q.conn.CloseWithError(0, "done") }

// QUICListener accepts QUIC sessions for a receiver.
type QUICListener struct {
	ln *quic.Listener
}

// ListenQUIC listens on addr. A nil tlsConf selects a fresh self-signed
// certificate for alpn.
func ListenQUIC(addr, alpn string, tlsConf *tls.Config) (*QUICListener, error) {
	if tlsConf == nil {
		var err error
		if tlsConf, err = SelfSignedTLS(alpn); err != nil {
			return nil, err
		}
	}
	ln, err := quic.ListenAddr(addr, tlsConf, quicConfig(2*time.Second))
	if err != nil {
		return nil, err
	}
	return &QUICListener{ln: ln}, nil
}

func (l *QUICListener) Accept(ctx context.Context) (Conn, error) {
	conn, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, err
	}
	return &quicConn{conn: conn}, nil
}

func (l *QUICListener) Addr() net.Addr { return l.ln.Addr() }

func (l *QUICListener) Close() error { return l.ln.Close() }
