// SPDX-License-Identifier: GPL-3.0-or-later

// Package dataset defines how the checker datasets are fetched and applied.
//
// Each dataset implements [Updatable]. The [Sources] struct holds the
// location of every raw file, and the [Downloader] reads them either
// over HTTP(S) or from the local filesystem.
package dataset

import (
	"context"
	"os"
)

// Updatable is a dataset that can be refreshed from its sources.
type Updatable interface {
	// Name returns the dataset name used in logs.
	Name() string

	// Fetch downloads the raw files of the dataset.
	Fetch(ctx context.Context) ([][]byte, error)

	// Apply parses the raw files and replaces the live dataset. On
	// failure the previous state of the dataset is kept.
	Apply(raw [][]byte) error
}

// Names of the environment variables overriding the default sources.
const (
	EnvCDNSource  = "CDN_SOURCE"
	EnvGeoASN     = "GEO_ASN"
	EnvGeoCountry = "GEO_COUNTRY"
	EnvGeoCity    = "GEO_CITY"
	EnvRKNNets    = "RKN_NETS"
	EnvRKNDomains = "RKN_DOMAINS"
)

// Default locations of the datasets.
const (
	DefaultCDNSource  = "https://raw.githubusercontent.com/123jjck/cdn-ip-ranges/refs/heads/main/all/all.csv"
	DefaultGeoASN     = "https://git.io/GeoLite2-ASN.mmdb"
	DefaultGeoCountry = "https://git.io/GeoLite2-Country.mmdb"
	DefaultGeoCity    = "https://git.io/GeoLite2-City.mmdb"
	DefaultRKNNets    = "https://antifilter.download/list/allyouneed.lst"
	DefaultRKNDomains = "https://antifilter.download/list/domains.lst"
)

// Sources contains the location of every dataset file. A location is
// either an http(s) URL or a local file path.
type Sources struct {
	CDN        string
	GeoASN     string
	GeoCountry string
	GeoCity    string
	RKNNets    string
	RKNDomains string
}

// DefaultSources returns the [Sources] pointing to the public lists.
func DefaultSources() Sources {
	return Sources{
		CDN:        DefaultCDNSource,
		GeoASN:     DefaultGeoASN,
		GeoCountry: DefaultGeoCountry,
		GeoCity:    DefaultGeoCity,
		RKNNets:    DefaultRKNNets,
		RKNDomains: DefaultRKNDomains,
	}
}

// SourcesFromEnv returns [DefaultSources] with the locations overridden
// by the corresponding non-empty environment variables.
func SourcesFromEnv(lookup func(string) (string, bool)) Sources {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	s := DefaultSources()
	for _, entry := range []struct {
		key   string
		value *string
	}{
		{EnvCDNSource, &s.CDN},
		{EnvGeoASN, &s.GeoASN},
		{EnvGeoCountry, &s.GeoCountry},
		{EnvGeoCity, &s.GeoCity},
		{EnvRKNNets, &s.RKNNets},
		{EnvRKNDomains, &s.RKNDomains},
	} {
		if v, ok := lookup(entry.key); ok && v != "" {
			*entry.value = v
		}
	}
	return s
}
