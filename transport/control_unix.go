// Copyright (C) 2024 kvwire contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

//go:build linux || netbsd || openbsd || solaris || freebsd || aix || darwin || dragonfly
// +build linux netbsd openbsd solaris freebsd aix darwin dragonfly

package transport

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// controlTCPNoDelay is passed as net.Dialer.Control. It runs on the
// raw file descriptor before the dial completes, disabling Nagle's
// algorithm so small request frames are not held back waiting to be
// coalesced with a follow-up write — this library's FIFO pending queue
// already depends on writes reaching the wire promptly.
func controlTCPNoDelay(_, _ string, c syscall.RawConn) error {
	var setErr error
	err := c.Control(func(fd uintptr) {
		setErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	})
	if err != nil {
		return err
	}
	return setErr
}
