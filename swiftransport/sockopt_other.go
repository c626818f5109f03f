//go:build !linux

package swiftransport

import "net"

func setReadBuffer(c *net.UDPConn, size int) error { return c.SetReadBuffer(size) }
