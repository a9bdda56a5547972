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

//go:build !(linux || netbsd || openbsd || solaris || freebsd || aix || darwin || dragonfly)
// +build !linux,!netbsd,!openbsd,!solaris,!freebsd,!aix,!darwin,!dragonfly

package transport

import "syscall"

// controlTCPNoDelay is a no-op on platforms without golang.org/x/sys/unix
// socket option support; net.Dialer still completes the dial normally.
func controlTCPNoDelay(_, _ string, _ syscall.RawConn) error {
	return nil
}
