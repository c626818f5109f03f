// Package swiftransport carries a sliding window FEC session between a
// sender and a receiver over UDP or QUIC datagrams.
package swiftransport

import (
	"context"
	"errors"
)

//go:generate mockgen -source=conn.go -destination=mock_conn_test.go -package=swiftransport

// Conn is the datagram channel a session runs on. Control messages (the
// OTI) are delivered reliably where the transport allows it; datagrams are
// best effort.
type Conn interface {
	SendControl(ctx context.Context, b []byte) error
	ReceiveControl(ctx context.Context) ([]byte, error)
	SendDatagram(b []byte) error
	ReceiveDatagram(ctx context.Context) ([]byte, error)
	Close() error
}

var (
	// ErrClosed is returned by operations on a closed Conn.
	ErrClosed = errors.New("swiftransport: connection closed")
	// ErrNoPeer is returned when a listening UDP Conn sends before it has
	// heard from a peer.
	ErrNoPeer = errors.New("swiftransport: no peer address")
	// ErrBadOTI is returned for a session description the receiver cannot
	// serve.
	ErrBadOTI = errors.New("swiftransport: invalid FEC OTI")
)
