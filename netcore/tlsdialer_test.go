// SPDX-License-Identifier: GPL-3.0-or-later

package netcore

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rbmk-project/blockcheck/errclass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSNIServer starts a TLS server recording the SNI of each handshake.
func newSNIServer(t *testing.T) (*httptest.Server, func() []string) {
	var (
		mu    sync.Mutex
		names []string
	)
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	srv.TLS = &tls.Config{
		GetConfigForClient: func(hello *tls.ClientHelloInfo) (*tls.Config, error) {
			mu.Lock()
			names = append(names, hello.ServerName)
			mu.Unlock()
			return nil, nil
		},
	}
	srv.StartTLS()
	t.Cleanup(srv.Close)
	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string{}, names...)
	}
}

func TestNetwork_DialTLSContext(t *testing.T) {
	t.Run("tls config failure", func(t *testing.T) {
		nx := &Network{
			TLSConfig: nil, // Force creation of a new config
		}

		ctx := context.Background()
		conn, err := nx.DialTLSContext(ctx, "tcp", "invalid:address:format")
		assert.Error(t, err)
		assert.Nil(t, conn)
	})

	t.Run("lookup failure", func(t *testing.T) {
		expectedErr := errors.New("mocked lookup error")
		nx := &Network{
			LookupHostFunc: func(ctx context.Context, domain string) ([]string, error) {
				return nil, expectedErr
			},
		}

		ctx := context.Background()
		conn, err := nx.DialTLSContext(ctx, "tcp", "example.com:443")
		assert.ErrorIs(t, err, expectedErr)
		assert.Nil(t, conn)
	})

	t.Run("dial failure", func(t *testing.T) {
		expectedErr := errors.New("mocked dial error")
		nx := &Network{
			LookupHostFunc: func(ctx context.Context, domain string) ([]string, error) {
				return []string{"1.2.3.4"}, nil
			},
			DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
				return nil, expectedErr
			},
		}

		ctx := context.Background()
		conn, err := nx.DialTLSContext(ctx, "tcp", "example.com:443")
		assert.ErrorIs(t, err, expectedErr)
		assert.True(t, errclass.IsConnect(err))
		assert.Nil(t, conn)
	})

	t.Run("pinned dial sends the requested SNI", func(t *testing.T) {
		srv, names := newSNIServer(t)
		vantage := srv.Listener.Addr().String()

		nx := &Network{
			SkipTLSVerify:  true,
			LookupHostFunc: PinnedLookupHost("203.0.113.7"),
			DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
				// the pinned lookup must have produced the vantage endpoint
				if address != "203.0.113.7:443" {
					return nil, errors.New("unexpected address: " + address)
				}
				return (&net.Dialer{}).DialContext(ctx, network, vantage)
			},
		}

		conn, err := nx.DialTLSContext(context.Background(), "tcp", "blocked.example:443")
		require.NoError(t, err)
		defer conn.Close()

		state := conn.(*tls.Conn).ConnectionState()
		assert.True(t, state.HandshakeComplete)
		assert.Equal(t, []string{"blocked.example"}, names())
	})

	t.Run("certificate verification failure", func(t *testing.T) {
		srv, _ := newSNIServer(t)
		vantage := srv.Listener.Addr().String()

		nx := &Network{
			LookupHostFunc: PinnedLookupHost("203.0.113.7"),
			DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
				return (&net.Dialer{}).DialContext(ctx, network, vantage)
			},
		}

		conn, err := nx.DialTLSContext(context.Background(), "tcp", "example.com:443")
		assert.Nil(t, conn)
		assert.True(t, errclass.IsConnect(err))
		assert.Equal(t, errclass.ETLS_CA_UNKNOWN, errclass.New(err))
	})
}

func Test_tlsDialer_dial(t *testing.T) {
	t.Run("dial failure", func(t *testing.T) {
		expectedErr := errors.New("mocked dial error")

		nx := &Network{
			DialContextFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
				return nil, expectedErr
			},
		}

		dialer := &tlsDialer{
			config: &tls.Config{},
			netx:   nx,
		}

		ctx := context.Background()
		conn, err := dialer.dial(ctx, "tcp", "example.com:443")
		assert.ErrorIs(t, err, expectedErr)
		assert.Nil(t, conn)
	})

	t.Run("silent server times out the handshake", func(t *testing.T) {
		// a listener that accepts and never answers, like a middlebox
		// dropping the ClientHello
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer listener.Close()
		go func() {
			for {
				conn, err := listener.Accept()
				if err != nil {
					return
				}
				defer conn.Close()
			}
		}()

		var buf bytes.Buffer
		fixedTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{
			Level: slog.LevelInfo,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					return slog.Attr{}
				}
				return a
			},
		}))

		nx := &Network{
			Logger:      logger,
			ReadTimeout: 100 * time.Millisecond,
			TimeNow: func() time.Time {
				return fixedTime
			},
		}

		dialer := &tlsDialer{
			config: &tls.Config{ServerName: "example.com", InsecureSkipVerify: true},
			netx:   nx,
		}

		conn, err := dialer.dial(context.Background(), "tcp", listener.Addr().String())
		assert.Nil(t, conn)
		assert.True(t, errclass.IsTimeout(err))

		// We expect to see at least: connect start/done, tls start/done
		logs := strings.Split(strings.TrimSpace(buf.String()), "\n")
		assert.True(t, len(logs) >= 4, "Expected at least 4 log entries")

		var handshakeStartFound, handshakeDoneFound bool
		for _, log := range logs {
			var logMap map[string]interface{}
			err := json.Unmarshal([]byte(log), &logMap)
			require.NoError(t, err)

			if logMap["msg"] == "tlsHandshakeStart" {
				handshakeStartFound = true
				assert.Equal(t, "tcp", logMap["protocol"])
				assert.Equal(t, listener.Addr().String(), logMap["remoteAddr"])
				assert.Equal(t, "example.com", logMap["tlsServerName"])
				assert.Equal(t, true, logMap["tlsSkipVerify"])
			} else if logMap["msg"] == "tlsHandshakeDone" {
				handshakeDoneFound = true
				assert.Equal(t, errclass.ETIMEDOUT, logMap["errClass"])
				assert.Equal(t, "", logMap["tlsNegotiatedProtocol"])
				assert.Equal(t, "example.com", logMap["tlsServerName"])
				assert.Equal(t, "0x0000", logMap["tlsVersion"])
			}
		}

		assert.True(t, handshakeStartFound, "tlsHandshakeStart log entry not found")
		assert.True(t, handshakeDoneFound, "tlsHandshakeDone log entry not found")
	})
}
