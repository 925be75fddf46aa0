// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package netcore provides the measurable TCP and TLS dialers used
by the active prober.

This package is designed to facilitate measuring TCP and TLS connection
events via the [log/slog] package, while plugging into [*net/http.Transport]
through the DialContext and DialTLSContext hooks.

# Features

- TCP dialer compatible with the [*net.Dialer];

- TLS dialer compatible with the [*tls.Dialer], honouring a
per-network SNI and optionally skipping certificate verification;

- pluggable domain lookup, which [PinnedLookupHost] uses to send
every connection to a single vantage address regardless of the
hostname being probed;

- per-read inactivity timeout applied to every connection.
*/
package netcore
