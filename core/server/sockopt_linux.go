//go:build linux

package server

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// controlListener applies listener-level options before bind. Failures
// are logged, never fatal.
func (s *Server) controlListener(network, address string, c syscall.RawConn) error {
	return c.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			s.log.Warn().Err(err).Msg("failed to set SO_REUSEADDR")
		}
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
			s.log.Warn().Err(err).Msg("failed to set SO_REUSEPORT")
		}
		if err := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_FASTOPEN, fastOpenQueueLen); err != nil {
			s.log.Warn().Err(err).Msg("failed to set TCP_FASTOPEN")
		}
	})
}

const fastOpenQueueLen = 5

// setQuickAck enables TCP_QUICKACK on an accepted socket, best effort.
func setQuickAck(tc *net.TCPConn) {
	raw, err := tc.SyscallConn()
	if err != nil {
		return
	}
	raw.Control(func(fd uintptr) {
		unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_QUICKACK, 1)
	})
}
