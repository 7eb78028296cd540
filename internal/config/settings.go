package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Output formats.
const (
	FormatDnsmasq = "dnsmasq"
	FormatHosts   = "hosts"
)

// Settings holds the run parameters. Keys match the command line flags.
type Settings struct {
	Domains        string        `mapstructure:"domains"`
	Servers        string        `mapstructure:"servers"`
	DomainsFrom    string        `mapstructure:"domains-from"`
	IPs            string        `mapstructure:"ips"`
	PingCount      int           `mapstructure:"ping-count"`
	PingTimeout    time.Duration `mapstructure:"ping-timeout"`
	PingPrivileged bool          `mapstructure:"ping-privileged"`
	HTTPSCount     int           `mapstructure:"https-count"`
	HTTPSTimeout   time.Duration `mapstructure:"https-timeout"`
	DNSTimeout     time.Duration `mapstructure:"dns-timeout"`
	Concurrency    int           `mapstructure:"concurrency"`
	Format         string        `mapstructure:"format"`
	WriteTo        string        `mapstructure:"write"`
}

// Defaults returns the settings used when nothing else is configured.
func Defaults() Settings {
	return Settings{
		Domains:      "domains.txt",
		Servers:      "server.txt",
		IPs:          "ip.txt",
		PingCount:    20,
		PingTimeout:  time.Second,
		HTTPSCount:   20,
		HTTPSTimeout: 3 * time.Second,
		DNSTimeout:   5 * time.Second,
		Format:       FormatDnsmasq,
	}
}

// NewViper returns a viper instance carrying the defaults and reading
// DNSREWRITE_* environment variables.
func NewViper() *viper.Viper {
	v := viper.New()
	d := Defaults()
	v.SetDefault("domains", d.Domains)
	v.SetDefault("servers", d.Servers)
	v.SetDefault("domains-from", d.DomainsFrom)
	v.SetDefault("ips", d.IPs)
	v.SetDefault("ping-count", d.PingCount)
	v.SetDefault("ping-timeout", d.PingTimeout)
	v.SetDefault("ping-privileged", d.PingPrivileged)
	v.SetDefault("https-count", d.HTTPSCount)
	v.SetDefault("https-timeout", d.HTTPSTimeout)
	v.SetDefault("dns-timeout", d.DNSTimeout)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("format", d.Format)
	v.SetDefault("write", d.WriteTo)
	v.SetEnvPrefix("DNSREWRITE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file and decodes the settings. An empty
// configFile looks for dnsrewrite.{yaml,json,toml} in the working directory
// and tolerates its absence.
func Load(v *viper.Viper, configFile string) (Settings, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, errors.Wrap(err, "reading config file")
		}
	} else {
		v.SetConfigName("dnsrewrite")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Settings{}, errors.Wrap(err, "reading config file")
			}
		}
	}
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, errors.Wrap(err, "decoding settings")
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks the settings for consistency.
func (s Settings) Validate() error {
	if s.PingCount <= 0 {
		return errors.New("ping-count must be positive")
	}
	if s.PingTimeout <= 0 {
		return errors.New("ping-timeout must be positive")
	}
	if s.HTTPSCount <= 0 {
		return errors.New("https-count must be positive")
	}
	if s.HTTPSTimeout <= 0 {
		return errors.New("https-timeout must be positive")
	}
	if s.DNSTimeout <= 0 {
		return errors.New("dns-timeout must be positive")
	}
	if s.Concurrency < 0 {
		return errors.New("concurrency must not be negative")
	}
	switch s.Format {
	case FormatDnsmasq, FormatHosts:
	default:
		return errors.Errorf("unknown output format %q", s.Format)
	}
	return nil
}
