// SPDX-License-Identifier: GPL-3.0-or-later

package prober

import (
	_ "embed"
	"encoding/csv"
	"errors"
	"io"
	"strings"
)

//go:embed targets.csv
var defaultTargets string

// fdHeadroom is the number of descriptors reserved besides the probes.
const fdHeadroom = 128

// LowOpenFileLimit returns the open file limit and whether it is
// too low to run the given number of concurrent probes.
func LowOpenFileLimit(probes int) (uint64, bool) {
	limit, ok := OpenFileLimit()
	return limit, ok && limit <= uint64(probes)+fdHeadroom
}

// DefaultTargets returns up to count targets of the embedded list.
func DefaultTargets(count int) []string {
	targets, _ := LoadTargets(strings.NewReader(defaultTargets), count)
	return targets
}

// LoadTargets reads up to count targets from a CSV list whose last
// column is the domain, such as the rank,domain format.
func LoadTargets(r io.Reader, count int) ([]string, error) {
	rdr := csv.NewReader(r)
	rdr.FieldsPerRecord = -1
	rdr.Comment = '#'
	var out []string
	for len(out) < count {
		row, err := rdr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, err
		}
		if domain := strings.TrimSpace(row[len(row)-1]); domain != "" {
			out = append(out, domain)
		}
	}
	return out, nil
}
