// SPDX-License-Identifier: GPL-3.0-or-later

package checker

import (
	"strconv"
	"time"
)

// Stats summarizes the state of the datasets.
type Stats struct {
	TotalDomains int        `json:"total_domains"`
	TotalV4s     uint64     `json:"total_v4s"`
	CdnNetworks  int        `json:"cdn_networks"`
	GeoDatabases int        `json:"geo_databases"`
	LastUpdate   *time.Time `json:"last_update"`
}

// Stats returns the current [Stats].
func (c *Checker) Stats() Stats {
	cdn, rkn := c.CDN.View(), c.RKN.View()
	st := Stats{
		TotalDomains: rkn.TotalDomains(),
		TotalV4s:     cdn.TotalV4s() + rkn.TotalV4s(),
		CdnNetworks:  cdn.Len(),
		GeoDatabases: c.GeoIP.Loaded(),
	}
	if t, ok := c.LastUpdate(); ok {
		st.LastUpdate = &t
	}
	return st
}

// FormatNumber groups the digits of n by three using spaces.
func FormatNumber(n uint64) string {
	digits := strconv.FormatUint(n, 10)
	out := make([]byte, 0, len(digits)+len(digits)/3)
	for idx := range len(digits) {
		if idx > 0 && (len(digits)-idx)%3 == 0 {
			out = append(out, ' ')
		}
		out = append(out, digits[idx])
	}
	return string(out)
}
