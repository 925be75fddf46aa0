// SPDX-License-Identifier: GPL-3.0-or-later

// Package config loads the configuration of the checker service.
//
// Every setting may come from an optional TOML file and is overridden
// by the environment variable with the same name in uppercase.
package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/spf13/viper"

	"github.com/rbmk-project/blockcheck/dataset"
	"github.com/rbmk-project/blockcheck/logging"
	"github.com/rbmk-project/blockcheck/resolver"
)

// Config contains the settings of the checker service.
type Config struct {
	CDNSource  string `mapstructure:"cdn_source"`
	GeoASN     string `mapstructure:"geo_asn"`
	GeoCountry string `mapstructure:"geo_country"`
	GeoCity    string `mapstructure:"geo_city"`
	RKNNets    string `mapstructure:"rkn_nets"`
	RKNDomains string `mapstructure:"rkn_domains"`

	IntervalSeconds int    `mapstructure:"database_interval_seconds"`
	ListenAddr      string `mapstructure:"listen_addr"`
	DNSUpstream     string `mapstructure:"dns_upstream"`
	DNSNet          string `mapstructure:"dns_net"`
	GeoLocale       string `mapstructure:"geo_locale"`
	LogLevel        string `mapstructure:"log_level"`
	LogFormat       string `mapstructure:"log_format"`
}

// Sources returns the dataset locations.
func (c *Config) Sources() dataset.Sources {
	return dataset.Sources{
		CDN:        c.CDNSource,
		GeoASN:     c.GeoASN,
		GeoCountry: c.GeoCountry,
		GeoCity:    c.GeoCity,
		RKNNets:    c.RKNNets,
		RKNDomains: c.RKNDomains,
	}
}

// Interval returns the interval between dataset refreshes.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cdn_source", dataset.DefaultCDNSource)
	v.SetDefault("geo_asn", dataset.DefaultGeoASN)
	v.SetDefault("geo_country", dataset.DefaultGeoCountry)
	v.SetDefault("geo_city", dataset.DefaultGeoCity)
	v.SetDefault("rkn_nets", dataset.DefaultRKNNets)
	v.SetDefault("rkn_domains", dataset.DefaultRKNDomains)
	v.SetDefault("database_interval_seconds", 21600)
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("dns_upstream", resolver.DefaultServer)
	v.SetDefault("dns_net", resolver.DefaultNetwork)
	v.SetDefault("geo_locale", "ru")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// Load reads the configuration from the TOML file at path, when not
// empty, and from the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate returns an error when a setting is invalid.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.IntervalSeconds <= 0 {
		return errors.New("database_interval_seconds must be positive")
	}
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("invalid listen_addr: %w", err)
	}
	if _, _, err := net.SplitHostPort(c.DNSUpstream); err != nil {
		return fmt.Errorf("invalid dns_upstream: %w", err)
	}
	switch c.DNSNet {
	case "udp", "tcp", "tcp-tls":
	default:
		return fmt.Errorf("invalid dns_net: %s (must be one of: udp, tcp, tcp-tls)", c.DNSNet)
	}
	for name, location := range map[string]string{
		"cdn_source":  c.CDNSource,
		"geo_asn":     c.GeoASN,
		"geo_country": c.GeoCountry,
		"geo_city":    c.GeoCity,
		"rkn_nets":    c.RKNNets,
		"rkn_domains": c.RKNDomains,
	} {
		if location == "" {
			return fmt.Errorf("%s must not be empty", name)
		}
	}
	return nil
}
