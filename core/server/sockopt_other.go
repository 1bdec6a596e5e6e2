//go:build !linux

package server

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// controlListener applies listener-level options before bind. Failures
// are logged, never fatal. TCP_FASTOPEN and TCP_QUICKACK are
// Linux-specific and skipped here.
func (s *Server) controlListener(network, address string, c syscall.RawConn) error {
	return c.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			s.log.Warn().Err(err).Msg("failed to set SO_REUSEADDR")
		}
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
			s.log.Warn().Err(err).Msg("failed to set SO_REUSEPORT")
		}
	})
}

func setQuickAck(tc *net.TCPConn) {}
