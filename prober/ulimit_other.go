// SPDX-License-Identifier: GPL-3.0-or-later

//go:build !unix

package prober

// OpenFileLimit returns the soft limit of open file descriptors.
func OpenFileLimit() (uint64, bool) {
	return 0, false
}
