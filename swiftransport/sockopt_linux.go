//go:build linux

package swiftransport

import (
	"net"

	"golang.org/x/sys/unix"
)

// setReadBuffer raises SO_RCVBUF, first with SO_RCVBUFFORCE which ignores
// rmem_max when the process holds CAP_NET_ADMIN.
func setReadBuffer(c *net.UDPConn, size int) error {
	raw, err := c.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	if err := raw.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUFFORCE, size)
		if serr != nil {
			serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, size)
		}
	}); err != nil {
		return err
	}
	return serr
}
