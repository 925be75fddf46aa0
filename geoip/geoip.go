// SPDX-License-Identifier: GPL-3.0-or-later

// Package geoip enriches addresses with data from the MaxMind
// GeoLite2 ASN, Country and City databases.
package geoip

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"sync/atomic"

	"github.com/oschwald/maxminddb-golang"
)

// DefaultLocale is the default locale of the location names.
const DefaultLocale = "ru"

// unknown is the placeholder for missing location data.
const unknown = "-"

// IpInfo contains the information we know about an address.
//
// Empty fields mean that the corresponding database is missing or
// has no record for the address. Location is "-" when unknown.
type IpInfo struct {
	ASN           string `json:"asn,omitempty"`
	CountryCode   string `json:"country_code,omitempty"`
	Organisation  string `json:"organisation,omitempty"`
	CityGeoNameID uint   `json:"city_geo_name_id,omitempty"`
	Location      string `json:"location"`
}

// DefaultIpInfo returns the [IpInfo] of an address we know nothing about.
func DefaultIpInfo() IpInfo {
	return IpInfo{Location: unknown}
}

// asnRecord is the subset of the GeoLite2-ASN record we use.
type asnRecord struct {
	Number       uint   `maxminddb:"autonomous_system_number"`
	Organization string `maxminddb:"autonomous_system_organization"`
}

// countryNames is the subset of the country record we use.
type countryNames struct {
	ISOCode string            `maxminddb:"iso_code"`
	Names   map[string]string `maxminddb:"names"`
}

// countryRecord is the subset of the GeoLite2-Country record we use.
type countryRecord struct {
	Country countryNames `maxminddb:"country"`
}

// cityRecord is the subset of the GeoLite2-City record we use.
type cityRecord struct {
	City struct {
		GeoNameID uint              `maxminddb:"geoname_id"`
		Names     map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	Country countryNames `maxminddb:"country"`
}

// databases is an immutable set of readers; nil readers are absent.
type databases struct {
	asn, country, city *maxminddb.Reader
}

// GeoIp looks up addresses in up to three databases.
//
// The zero value has no databases and uses [DefaultLocale].
type GeoIp struct {
	// Locale selects the language of the location names.
	Locale string

	dbs atomic.Pointer[databases]
}

// Install parses the raw ASN, country and city databases and replaces
// the current ones. An empty slice leaves the corresponding database
// absent. Nothing changes when any of the databases fails to parse.
func (g *GeoIp) Install(asn, country, city []byte) error {
	var (
		dbs databases
		err error
	)
	if dbs.asn, err = open("asn", asn); err != nil {
		return err
	}
	if dbs.country, err = open("country", country); err != nil {
		return err
	}
	if dbs.city, err = open("city", city); err != nil {
		return err
	}
	g.dbs.Store(&dbs)
	return nil
}

func open(name string, data []byte) (*maxminddb.Reader, error) {
	if len(data) <= 0 {
		return nil, nil
	}
	reader, err := maxminddb.FromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("geoip: %s database: %w", name, err)
	}
	return reader, nil
}

// Loaded returns the number of installed databases.
func (g *GeoIp) Loaded() int {
	dbs := g.dbs.Load()
	if dbs == nil {
		return 0
	}
	count := 0
	for _, r := range []*maxminddb.Reader{dbs.asn, dbs.country, dbs.city} {
		if r != nil {
			count++
		}
	}
	return count
}

// Lookup queries every installed database. A missing database or a
// missing record contributes nothing, while a corrupt database
// causes an error.
func (g *GeoIp) Lookup(addr netip.Addr) (IpInfo, error) {
	info := DefaultIpInfo()
	dbs := g.dbs.Load()
	if dbs == nil {
		return info, nil
	}
	ip := net.IP(addr.Unmap().AsSlice())

	var (
		asn                 asnRecord
		country             countryRecord
		city                cityRecord
		hasCountry, hasCity bool
	)
	if dbs.asn != nil {
		if err := dbs.asn.Lookup(ip, &asn); err != nil {
			return info, fmt.Errorf("geoip: asn lookup: %w", err)
		}
	}
	if dbs.city != nil {
		if err := dbs.city.Lookup(ip, &city); err != nil {
			return info, fmt.Errorf("geoip: city lookup: %w", err)
		}
		hasCity = true
	}
	if dbs.country != nil {
		if err := dbs.country.Lookup(ip, &country); err != nil {
			return info, fmt.Errorf("geoip: country lookup: %w", err)
		}
		hasCountry = true
	}

	if asn.Number > 0 {
		info.ASN = "AS" + strconv.FormatUint(uint64(asn.Number), 10)
	}
	info.Organisation = asn.Organization
	info.CountryCode = country.Country.ISOCode
	info.CityGeoNameID = city.City.GeoNameID
	info.Location = g.location(hasCity, city, hasCountry, country)
	return info, nil
}

// location formats "{city}, {country}" when the city database knows both
// names, otherwise the country name, otherwise "-".
func (g *GeoIp) location(hasCity bool, city cityRecord, hasCountry bool, country countryRecord) string {
	locale := g.Locale
	if locale == "" {
		locale = DefaultLocale
	}
	name := func(names map[string]string) string {
		if v := names[locale]; v != "" {
			return v
		}
		return unknown
	}
	switch {
	case hasCity && city.City.Names != nil && city.Country.Names != nil:
		return name(city.City.Names) + ", " + name(city.Country.Names)
	case hasCountry && country.Country.Names != nil:
		return name(country.Country.Names)
	default:
		return unknown
	}
}
