//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/netxlite/dialer.go
//
// Cleartext conn dialer.
//

package netcore

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/rbmk-project/blockcheck/errclass"
)

// DialContext establishes a new TCP connection.
//
// Dial failures are wrapped using [*errclass.ConnectError].
func (nx *Network) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	// resolve the endpoints to connect to
	endpoints, err := nx.maybeLookupEndpoint(ctx, address)
	if err != nil {
		return nil, err
	}

	// sequentially attempt with each available endpoint
	return nx.sequentialDial(ctx, network, nx.dialLog, endpoints...)
}

// dialContextFunc is a function used to dial a connection.
type dialContextFunc func(ctx context.Context, network, address string) (net.Conn, error)

// sequentialDial attempts to dial the endpoints in sequence until one
// of them succeeds. It returns the first successfully established network
// connection, on success, and the union of all errors, otherwise.
func (nx *Network) sequentialDial(
	ctx context.Context,
	network string,
	fx dialContextFunc,
	endpoints ...string,
) (net.Conn, error) {
	var errv []error
	for _, endpoint := range endpoints {
		conn, err := fx(ctx, network, endpoint)
		if conn != nil && err == nil {
			return conn, nil
		}
		errv = append(errv, err)
	}
	if len(errv) <= 0 {
		errv = append(errv, errNoEndpoints)
	}
	return nil, &errclass.ConnectError{Err: errors.Join(errv...)}
}

// errNoEndpoints indicates that the lookup returned no addresses.
var errNoEndpoints = errors.New("netcore: no endpoints to dial")

// dialLog dials and emits structured logs around the dial.
func (nx *Network) dialLog(ctx context.Context, network, address string) (net.Conn, error) {
	t0 := nx.emitConnectStart(ctx, network, address)
	conn, err := nx.dialNet(ctx, network, address)
	nx.emitConnectDone(ctx, network, address, t0, conn, err)
	if err != nil {
		return nil, err
	}
	return nx.maybeWrapConn(ctx, conn), nil
}

// dialNet dials using either DialContextFunc or the [net] package.
func (nx *Network) dialNet(ctx context.Context, network, address string) (net.Conn, error) {
	// if there's an user provided dialer func, use it
	if nx.DialContextFunc != nil {
		return nx.DialContextFunc(ctx, network, address)
	}

	// otherwise use the net package
	child := &net.Dialer{}
	child.SetMultipathTCP(false)
	return child.DialContext(ctx, network, address)
}

// emitConnectStart emits a connectStart event.
func (nx *Network) emitConnectStart(ctx context.Context, network, address string) time.Time {
	t0 := nx.timeNow()
	if nx.Logger != nil {
		nx.Logger.InfoContext(
			ctx,
			"connectStart",
			slog.String("protocol", network),
			slog.String("remoteAddr", address),
			slog.Time("t", t0),
		)
	}
	return t0
}

// emitConnectDone emits a connectDone event.
func (nx *Network) emitConnectDone(ctx context.Context,
	network, address string, t0 time.Time, conn net.Conn, err error) {
	if nx.Logger != nil {
		nx.Logger.InfoContext(
			ctx,
			"connectDone",
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.String("localAddr", connLocalAddr(conn).String()),
			slog.String("protocol", network),
			slog.String("remoteAddr", address),
			slog.Time("t0", t0),
			slog.Time("t", nx.timeNow()),
		)
	}
}
