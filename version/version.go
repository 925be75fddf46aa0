// SPDX-License-Identifier: GPL-3.0-or-later

// Package version exposes build-time version metadata.
package version

// Version is the version string, set at build time with
//
//	go build -ldflags "-X github.com/rbmk-project/blockcheck/version.Version=v0.1.0"
var Version = "0.0.0-src"
