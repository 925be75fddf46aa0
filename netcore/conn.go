//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/measurexlite/conn.go
//
// Conn wrapper.
//

package netcore

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/rbmk-project/blockcheck/errclass"
)

// connLocalAddr is a safe way to get the local address of a connection.
func connLocalAddr(conn net.Conn) net.Addr {
	if conn != nil && conn.LocalAddr() != nil {
		return conn.LocalAddr()
	}
	return emptyAddr{}
}

// connRemoteAddr is a safe way to get the remote address of a connection.
func connRemoteAddr(conn net.Conn) net.Addr {
	if conn != nil && conn.RemoteAddr() != nil {
		return conn.RemoteAddr()
	}
	return emptyAddr{}
}

// emptyAddr is an empty [net.Addr].
type emptyAddr struct{}

// Network implements [net.Addr].
func (emptyAddr) Network() string { return "" }

// String implements [net.Addr].
func (emptyAddr) String() string { return "" }

// maybeWrapConn wraps a connection when we either need to emit structured
// logs or to enforce the per-read timeout.
func (nx *Network) maybeWrapConn(ctx context.Context, conn net.Conn) net.Conn {
	if conn == nil || (nx.Logger == nil && nx.ReadTimeout <= 0) {
		return conn
	}
	wrap := nx.WrapConn
	if wrap == nil {
		wrap = WrapConn
	}
	return wrap(ctx, nx, conn)
}

// WrapConn wraps a given [net.Conn] to emit structured logs and to
// arm a fresh read deadline before each read when the [*Network]
// has a nonzero ReadTimeout.
func WrapConn(ctx context.Context, netx *Network, conn net.Conn) net.Conn {
	laddr := connLocalAddr(conn)
	conn = &connWrapper{
		ctx:       ctx,
		closeonce: sync.Once{},
		conn:      conn,
		laddr:     laddr.String(),
		netx:      netx,
		protocol:  laddr.Network(),
		raddr:     connRemoteAddr(conn).String(),
		rtimeout:  netx.ReadTimeout,
	}
	return conn
}

// connWrapper wraps a [net.Conn].
type connWrapper struct {
	ctx       context.Context // only used for logging
	closeonce sync.Once
	conn      net.Conn
	laddr     string
	netx      *Network // may contain nil logger!
	protocol  string
	raddr     string
	rtimeout  time.Duration
}

// Close implements [net.Conn].
func (c *connWrapper) Close() (err error) {
	c.closeonce.Do(func() {
		t0 := c.netx.timeNow()
		if c.netx.Logger != nil {
			c.netx.Logger.InfoContext(
				c.ctx,
				"closeStart",
				slog.String("localAddr", c.laddr),
				slog.String("protocol", c.protocol),
				slog.String("remoteAddr", c.raddr),
				slog.Time("t", t0),
			)
		}

		err = c.conn.Close()

		if c.netx.Logger != nil {
			c.netx.Logger.InfoContext(
				c.ctx,
				"closeDone",
				slog.Any("err", err),
				slog.String("errClass", errclass.New(err)),
				slog.String("localAddr", c.laddr),
				slog.String("protocol", c.protocol),
				slog.String("remoteAddr", c.raddr),
				slog.Time("t0", t0),
				slog.Time("t", c.netx.timeNow()),
			)
		}
	})
	return
}

// LocalAddr implements [net.Conn].
func (c *connWrapper) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Read implements [net.Conn].
func (c *connWrapper) Read(buf []byte) (int, error) {
	t0 := c.netx.timeNow()
	if c.netx.Logger != nil {
		c.netx.Logger.InfoContext(
			c.ctx,
			"readStart",
			slog.Int("ioBufferSize", len(buf)),
			slog.String("localAddr", c.laddr),
			slog.String("protocol", c.protocol),
			slog.String("remoteAddr", c.raddr),
			slog.Time("t", t0),
		)
	}

	// the deadline uses the wall clock, not netx.TimeNow, which
	// tests may freeze for reproducible logs
	if c.rtimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.rtimeout)); err != nil {
			return 0, err
		}
	}

	count, err := c.conn.Read(buf)

	if c.netx.Logger != nil {
		c.netx.Logger.InfoContext(
			c.ctx,
			"readDone",
			slog.Int("ioBytesCount", count),
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.String("localAddr", c.laddr),
			slog.String("protocol", c.protocol),
			slog.String("remoteAddr", c.raddr),
			slog.Time("t0", t0),
			slog.Time("t", c.netx.timeNow()),
		)
	}

	return count, err
}

// RemoteAddr implements [net.Conn].
func (c *connWrapper) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SetDeadline implements [net.Conn].
func (c *connWrapper) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// SetReadDeadline implements [net.Conn].
func (c *connWrapper) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline implements [net.Conn].
func (c *connWrapper) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

// Write implements [net.Conn].
func (c *connWrapper) Write(data []byte) (n int, err error) {
	t0 := c.netx.timeNow()
	if c.netx.Logger != nil {
		c.netx.Logger.InfoContext(
			c.ctx,
			"writeStart",
			slog.Int("ioBufferSize", len(data)),
			slog.String("localAddr", c.laddr),
			slog.String("protocol", c.protocol),
			slog.String("remoteAddr", c.raddr),
			slog.Time("t", t0),
		)
	}

	count, err := c.conn.Write(data)

	if c.netx.Logger != nil {
		c.netx.Logger.InfoContext(
			c.ctx,
			"writeDone",
			slog.Int("ioBytesCount", count),
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.String("localAddr", c.laddr),
			slog.String("protocol", c.protocol),
			slog.String("remoteAddr", c.raddr),
			slog.Time("t0", t0),
			slog.Time("t", c.netx.timeNow()),
		)
	}

	return count, err
}
