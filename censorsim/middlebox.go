// SPDX-License-Identifier: GPL-3.0-or-later

package censorsim

import (
	"bytes"
	"errors"
	"io"
	"net"
	"net/netip"
	"sync"

	"github.com/rbmk-project/common/runtimex"
)

// Action is what a [*Middlebox] does with a matching connection.
type Action int

const (
	// Pass forwards the connection unchanged.
	Pass Action = iota

	// Reset closes the connection with a RST segment.
	Reset

	// Blackhole stops forwarding any traffic.
	Blackhole

	// Truncate forwards [Rule.Limit] bytes to the client, then blackholes.
	Truncate
)

// Rule applies an [Action] to connections whose first segment contains Pattern.
type Rule struct {
	Pattern []byte
	Action  Action
	Limit   int64
}

// Middlebox is a TCP proxy interfering with matching connections.
type Middlebox struct {
	backend  string
	listener net.Listener
	rules    []Rule

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewMiddlebox starts a [*Middlebox] on the loopback interface forwarding to backend.
func NewMiddlebox(backend netip.AddrPort, rules ...Rule) *Middlebox {
	m := &Middlebox{
		backend:  backend.String(),
		listener: runtimex.Try1(net.Listen("tcp", "127.0.0.1:0")),
		rules:    rules,
		conns:    make(map[net.Conn]struct{}),
	}
	m.wg.Add(1)
	go m.accept()
	return m
}

// Addr returns the address clients should connect to.
func (m *Middlebox) Addr() netip.AddrPort {
	return netip.MustParseAddrPort(m.listener.Addr().String())
}

// Close stops accepting and closes all the connections.
func (m *Middlebox) Close() error {
	m.mu.Lock()
	m.closed = true
	for conn := range m.conns {
		conn.Close()
	}
	m.mu.Unlock()
	err := m.listener.Close()
	m.wg.Wait()
	return err
}

func (m *Middlebox) track(conn net.Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		conn.Close()
		return false
	}
	m.conns[conn] = struct{}{}
	return true
}

func (m *Middlebox) untrack(conn net.Conn) {
	m.mu.Lock()
	delete(m.conns, conn)
	m.mu.Unlock()
	conn.Close()
}

func (m *Middlebox) accept() {
	defer m.wg.Done()
	for {
		conn, err := m.listener.Accept()
		if errors.Is(err, net.ErrClosed) {
			return
		}
		if err != nil {
			continue
		}
		if !m.track(conn) {
			continue
		}
		m.wg.Add(1)
		go m.serve(conn)
	}
}

func (m *Middlebox) match(segment []byte) Rule {
	for _, rule := range m.rules {
		if bytes.Contains(segment, rule.Pattern) {
			return rule
		}
	}
	return Rule{Action: Pass}
}

func (m *Middlebox) serve(client net.Conn) {
	defer m.wg.Done()
	defer m.untrack(client)

	buf := make([]byte, 4096)
	n, err := client.Read(buf)
	if err != nil {
		return
	}
	segment := buf[:n]

	rule := m.match(segment)
	switch rule.Action {
	case Reset:
		if tcpConn, ok := client.(*net.TCPConn); ok {
			tcpConn.SetLinger(0)
		}
		return
	case Blackhole:
		io.Copy(io.Discard, client)
		return
	}

	server, err := net.Dial("tcp", m.backend)
	if err != nil || !m.track(server) {
		return
	}
	defer m.untrack(server)
	if _, err := server.Write(segment); err != nil {
		return
	}

	upstream := make(chan struct{})
	go func() {
		defer close(upstream)
		io.Copy(server, client)
	}()

	if rule.Action == Truncate {
		io.CopyN(client, server, rule.Limit)
		<-upstream
		return
	}
	io.Copy(client, server)
	client.Close()
	<-upstream
}
