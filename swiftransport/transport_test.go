package swiftransport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/observe-l/swif/fec"
)

func TestPipeControlAndClose(t *testing.T) {
	a, b := Pipe(1)
	ctx := context.Background()

	require.NoError(t, a.SendControl(ctx, []byte("oti")))
	require.NoError(t, a.SendDatagram([]byte{1}))
	// Beyond depth datagrams are dropped silently.
	require.NoError(t, a.SendDatagram([]byte{2}))

	got, err := b.ReceiveControl(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("oti"), got)

	require.NoError(t, a.Close())
	got, err = b.ReceiveDatagram(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte{1}, got)
	_, err = b.ReceiveDatagram(ctx)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, b.SendDatagram([]byte{3}), ErrClosed)
}

func TestPipeReceiveHonorsContext(t *testing.T) {
	_, b := Pipe(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.ReceiveDatagram(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUDPListenerNeedsPeer(t *testing.T) {
	rx, err := ListenUDP("127.0.0.1:0", UDPOptions{})
	require.NoError(t, err)
	defer rx.Close()
	require.ErrorIs(t, rx.SendDatagram([]byte{1}), ErrNoPeer)
}

func TestUDPSession(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rx, err := ListenUDP("127.0.0.1:0", UDPOptions{ReadBatch: 8})
	require.NoError(t, err)
	defer rx.Close()
	tx, err := DialUDP(rx.(*udpConn).LocalAddr().String(), UDPOptions{})
	require.NoError(t, err)
	defer tx.Close()

	type result struct {
		st  ReceiverStats
		err error
	}
	done := make(chan result, 1)
	go func() {
		st, err := Receive(ctx, rx, ReceiverConfig{SymbolSize: 16, DensityThreshold: fec.FullDensity})
		done <- result{st, err}
	}()

	_, err = Send(ctx, tx, SenderConfig{
		Codepoint:        fec.CodepointRLCGF256FullDensity,
		DensityThreshold: fec.FullDensity,
		SymbolSize:       16,
		WindowSize:       10,
		TotalSource:      200,
		TotalEncoded:     299,
		Dropper:          &periodic{n: 7, phase: 4},
		Pace:             50 * time.Microsecond,
	})
	require.NoError(t, err)

	r := <-done
	require.NoError(t, r.err)
	require.True(t, r.st.Complete)
	require.EqualValues(t, 200, r.st.Available())

	// The listener learned the sender's address.
	require.NoError(t, rx.SendDatagram([]byte("ack")))
	b, err := tx.ReceiveDatagram(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("ack"), b)
}

func TestQUICSession(t *testing.T) {
	const alpn = "swif-test"
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ln, err := ListenQUIC("127.0.0.1:0", alpn, nil)
	require.NoError(t, err)
	defer ln.Close()

	type result struct {
		st  ReceiverStats
		err error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := ln.Accept(ctx)
		if err != nil {
			done <- result{err: err}
			return
		}
		defer conn.Close()
		st, err := Receive(ctx, conn, ReceiverConfig{SymbolSize: 16, DensityThreshold: fec.FullDensity})
		done <- result{st, err}
	}()

	tx, err := DialQUIC(ctx, ln.Addr().String(), alpn, true)
	require.NoError(t, err)
	st, err := Send(ctx, tx, SenderConfig{
		Codepoint:        fec.CodepointRLCGF256FullDensity,
		DensityThreshold: fec.FullDensity,
		SymbolSize:       16,
		WindowSize:       10,
		TotalSource:      100,
		TotalEncoded:     150,
		Linger:           200 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Zero(t, st.TooLarge)

	r := <-done
	require.NoError(t, tx.Close())
	// Datagrams are unreliable even on loopback.
	if r.err != nil {
		require.ErrorIs(t, r.err, ErrIncomplete)
	}
	require.Equal(t, uint32(100), r.st.OTI.TotalSource)
	require.Positive(t, r.st.Available())
}

func TestSelfSignedTLS(t *testing.T) {
	conf, err := SelfSignedTLS("swif")
	require.NoError(t, err)
	require.Len(t, conf.Certificates, 1)
	require.Equal(t, []string{"swif"}, conf.NextProtos)
}
