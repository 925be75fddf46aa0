// SPDX-License-Identifier: GPL-3.0-or-later

// Package report contains the results of a probing run and the code
// to export and upload them.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"slices"

	"github.com/fxamacker/cbor/v2"
)

// Evidence is the outcome of probing a single target.
type Evidence int

const (
	// Ok means that the target responded with the full content.
	Ok Evidence = iota

	// Blocked means that the connection was interfered with.
	Blocked

	// ConnectError means that we could not connect to the vantage server.
	ConnectError

	// Error is any other inconclusive failure.
	Error
)

// String returns the label used in exported results.
func (e Evidence) String() string {
	switch e {
	case Ok:
		return "ok"
	case Blocked:
		return "blocked"
	case ConnectError:
		return "connect_error"
	default:
		return "unknown_error"
	}
}

// wireNames are the names used in the uploaded report.
var wireNames = []string{"Ok", "Blocked", "ConnectError", "Error"}

// MarshalText implements [encoding.TextMarshaler].
func (e Evidence) MarshalText() ([]byte, error) {
	if e < Ok || e > Error {
		return nil, fmt.Errorf("report: invalid evidence: %d", int(e))
	}
	return []byte(wireNames[e]), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (e *Evidence) UnmarshalText(data []byte) error {
	idx := slices.Index(wireNames, string(data))
	if idx < 0 {
		return fmt.Errorf("report: invalid evidence: %q", data)
	}
	*e = Evidence(idx)
	return nil
}

// MarshalCBOR implements [cbor.Marshaler].
func (e Evidence) MarshalCBOR() ([]byte, error) {
	name, err := e.MarshalText()
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(string(name))
}

// UnmarshalCBOR implements [cbor.Unmarshaler].
func (e *Evidence) UnmarshalCBOR(data []byte) error {
	var name string
	if err := cbor.Unmarshal(data, &name); err != nil {
		return err
	}
	return e.UnmarshalText([]byte(name))
}

// ReporterConfig is the configuration of the probing run.
type ReporterConfig struct {
	HTTP        bool   `cbor:"http" json:"http"`
	TxJunk      bool   `cbor:"tx_junk" json:"tx_junk"`
	IP          string `cbor:"ip" json:"ip"`
	Path        string `cbor:"path" json:"path"`
	RetryCount  int    `cbor:"retry_count" json:"retry_count"`
	TimeoutSecs uint64 `cbor:"timeout_secs" json:"timeout_secs"`
	ProbeCount  int    `cbor:"probe_count" json:"probe_count"`
}

// AgencyReport is the report uploaded at the end of a run.
type AgencyReport struct {
	Version string              `cbor:"version" json:"version"`
	Config  ReporterConfig      `cbor:"config" json:"config"`
	Data    map[string]Evidence `cbor:"data" json:"data"`
}

// WriteCSV writes the target,evidence rows sorted by target.
func WriteCSV(w io.Writer, data map[string]Evidence) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"target", "evidence"}); err != nil {
		return err
	}
	targets := make([]string, 0, len(data))
	for target := range data {
		targets = append(targets, target)
	}
	slices.Sort(targets)
	for _, target := range targets {
		if err := cw.Write([]string{target, data[target].String()}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
