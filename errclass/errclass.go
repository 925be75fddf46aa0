// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package errclass implements error classification.

The general idea is to classify golang errors to an enum of strings
with names resembling standard Unix error names.

The classification itself is [github.com/rbmk-project/common/errclass];
this package re-exports it and adds the predicates used by the prober.

# Design Principles

1. Preserve original error in `err` in the structured logs.

2. Add the classified error as the `errClass` field.

3. Use [errors.Is] and [errors.As] for classification.

4. Use string-based classification for readability.

5. Follow Unix-like naming where appropriate.

6. Prefix subsystem-specific errors (`EDNS_`, `ETLS_`).

7. Keep full names for clarity over brevity.

8. Map the nil error to an empty string.

# System and Network Errors

- [ETIMEDOUT] for [context.DeadlineExceeded], [os.ErrDeadlineExceeded]

- [EINTR] for [context.Canceled], [net.ErrClosed]

- [EEOF] for (unexpected) [io.EOF] and [io.ErrUnexpectedEOF] errors

- [ECONNRESET], [ECONNREFUSED], ... for respective syscall errors

The platform-specific errno mapping lives in the common package.

# DNS Errors

- [EDNS_NONAME] for errors with the "no such host" suffix

- [EDNS_NODATA] for errors with the "no answer" suffix

# TLS

- [ETLS_HOSTNAME_MISMATCH] for hostname verification failure

- [ETLS_CA_UNKNOWN] for unknown certificate authority

- [ETLS_CERT_INVALID] for invalid certificate

# Probe Outcomes

[IsTimeout] and [IsConnect] tell apart the terminal failures of a
probe: a timeout is evidence of interference, while a connect-phase
failure or any other error is inconclusive.

# Fallback

- [EGENERIC] for unclassified errors
*/
package errclass

import (
	"context"
	"errors"
	"net"
	"os"

	"github.com/rbmk-project/common/errclass"
)

const (
	//
	// Errors that we can map using [errors.Is]:
	//

	// EADDRNOTAVAIL is the address not available error.
	EADDRNOTAVAIL = errclass.EADDRNOTAVAIL

	// EADDRINUSE is the address in use error.
	EADDRINUSE = errclass.EADDRINUSE

	// ECONNABORTED is the connection aborted error.
	ECONNABORTED = errclass.ECONNABORTED

	// ECONNREFUSED is the connection refused error.
	ECONNREFUSED = errclass.ECONNREFUSED

	// ECONNRESET is the connection reset by peer error.
	ECONNRESET = errclass.ECONNRESET

	// EHOSTUNREACH is the host unreachable error.
	EHOSTUNREACH = errclass.EHOSTUNREACH

	// EEOF indicates an unexpected EOF.
	EEOF = errclass.EEOF

	// EINVAL is the invalid argument error.
	EINVAL = errclass.EINVAL

	// EINTR is the interrupted system call error.
	EINTR = errclass.EINTR

	// ENETDOWN is the network is down error.
	ENETDOWN = errclass.ENETDOWN

	// ENETUNREACH is the network unreachable error.
	ENETUNREACH = errclass.ENETUNREACH

	// ENOBUFS is the no buffer space available error.
	ENOBUFS = errclass.ENOBUFS

	// ENOTCONN is the not connected error.
	ENOTCONN = errclass.ENOTCONN

	// EPROTONOSUPPORT is the protocol not supported error.
	EPROTONOSUPPORT = errclass.EPROTONOSUPPORT

	// ETIMEDOUT is the operation timed out error.
	ETIMEDOUT = errclass.ETIMEDOUT

	//
	// Errors that we can map using the error message suffix:
	//

	// EDNS_NONAME is the DNS error for "no such host".
	EDNS_NONAME = errclass.EDNS_NONAME

	// EDNS_NODATA 	is the DNS error for "no answer".
	EDNS_NODATA = errclass.EDNS_NODATA

	//
	// Errors that we can map using [errors.As]:
	//

	// ETLS_HOSTNAME_MISMATCH is the TLS error for hostname verification failure.
	ETLS_HOSTNAME_MISMATCH = errclass.ETLS_HOSTNAME_MISMATCH

	// ETLS_CA_UNKNOWN is the TLS error for unknown certificate authority.
	ETLS_CA_UNKNOWN = errclass.ETLS_CA_UNKNOWN

	// ETLS_CERT_INVALID is the TLS error for invalid certificate.
	ETLS_CERT_INVALID = errclass.ETLS_CERT_INVALID

	//
	// Fallback errors:
	//

	// EGENERIC is the generic, unclassified error.
	EGENERIC = errclass.EGENERIC
)

// New is an alias for [errclass.New].
var New = errclass.New

// IsTimeout returns whether the error is a timeout.
//
// It checks the whole chain for a deadline, so an [errors.Join] of
// several dial errors counts as a timeout whenever one of them is.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, context.DeadlineExceeded) ||
		isTimeoutFlag(err)
}

// isTimeoutFlag returns whether any error in the chain reports Timeout() == true.
func isTimeoutFlag(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// IsConnect returns whether the error occurred while establishing
// the connection, i.e., before any application data was exchanged.
//
// We consider connect-phase failures the dial errors emitted by the
// [net] package and the errors wrapped by [*ConnectError].
func IsConnect(err error) bool {
	if err == nil {
		return false
	}
	var ce *ConnectError
	if errors.As(err, &ce) {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe) && oe.Op == "dial"
}

// ConnectError marks an error as occurring during the connect phase.
type ConnectError struct {
	Err error
}

// Error implements error.
func (e *ConnectError) Error() string {
	return "connect: " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ConnectError) Unwrap() error {
	return e.Err
}
