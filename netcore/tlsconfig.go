//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// TLS config code.
//

package netcore

import (
	"crypto/tls"
	"net"
)

// tlsConfig returns the TLS config to use for dialing the given address.
//
// When TLSConfig is set, we clone it and fill the ServerName if the
// caller left it empty, so that a shared config still sends the SNI
// of the host being dialed.
func (nx *Network) tlsConfig(address string) (*tls.Config, error) {
	if nx.TLSConfig != nil {
		config := nx.TLSConfig.Clone()
		if config.ServerName == "" {
			sni, _, err := net.SplitHostPort(address)
			if err != nil {
				return nil, err
			}
			config.ServerName = sni
		}
		return config, nil
	}
	return newTLSConfig(address, nx.SkipTLSVerify)
}

// newTLSConfig creates a TLS config for speaking HTTP/1.1 over TCP
// with the host inside the address as the SNI.
func newTLSConfig(address string, skipVerify bool) (*tls.Config, error) {
	sni, _, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}
	config := &tls.Config{
		// #nosec G402 -- probing arbitrary names through one vantage IP
		InsecureSkipVerify: skipVerify,
		NextProtos:         []string{"http/1.1"},
		ServerName:         sni,
	}
	return config, nil
}
