// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package censorsim simulates in-path interference for testing probes.

# Vantage server

The [*Vantage] type is an HTTP or HTTPS server answering to any SNI and
Host header with the same file, honoring byte ranges. It models the
fixed vantage server every probed name resolves to.

# Middlebox

The [*Middlebox] type is a TCP proxy placed in front of a server. It
inspects the first segment sent by the client, which contains the TLS
SNI or the HTTP Host header, and applies the first matching [Rule]:

  - [Reset] closes the connection with a RST segment;

  - [Blackhole] stops forwarding traffic, causing timeouts;

  - [Truncate] forwards a limited number of bytes towards the client
    and then blackholes the connection, modeling censors that let the
    handshake complete and throttle the response.

Connections not matching any rule are forwarded unchanged.
*/
package censorsim
