// SPDX-License-Identifier: GPL-3.0-or-later

package prober

import (
	"math/rand/v2"
	"sync"
)

// JunkSize is the size of the junk request body.
const JunkSize = 64 << 10

// junkSeed makes the junk identical across runs of the same binary.
var junkSeed = [32]byte([]byte("blockcheck dpiprobe junk payload"))

// Junk returns the pseudorandom request body. Callers must not modify it.
var Junk = sync.OnceValue(func() []byte {
	buf := make([]byte, JunkSize)
	rand.NewChaCha8(junkSeed).Read(buf)
	return buf
})
