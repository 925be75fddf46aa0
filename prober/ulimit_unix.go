// SPDX-License-Identifier: GPL-3.0-or-later

//go:build unix

package prober

import "golang.org/x/sys/unix"

// OpenFileLimit returns the soft limit of open file descriptors.
func OpenFileLimit() (uint64, bool) {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return 0, false
	}
	return uint64(rl.Cur), true
}
