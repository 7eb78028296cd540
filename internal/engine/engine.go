package engine

import (
	"context"
	"errors"
	"time"

	"example.com/dnsrewrite/internal/model"
	"example.com/dnsrewrite/internal/resolver"
)

// Config describes the DNS servers and the probing parameters of a run.
type Config struct {
	Resolvers []resolver.Lookuper

	PingCount      int
	PingTimeout    time.Duration
	PingPrivileged bool
	HTTPSCount     int
	HTTPSTimeout   time.Duration
	Concurrency    int

	// Ping and HTTPS replace the default probers when set.
	Ping  Prober
	HTTPS Prober

	Logger model.Logger
}

// DefaultConfig returns a config with the default sample sizes and timeouts.
func DefaultConfig(resolvers []resolver.Lookuper) Config {
	return Config{
		Resolvers:    resolvers,
		PingCount:    DefaultPingCount,
		PingTimeout:  DefaultPingTimeout,
		HTTPSCount:   DefaultHTTPSCount,
		HTTPSTimeout: DefaultHTTPSTimeout,
	}
}

func (c Config) validate() error {
	if len(c.Resolvers) == 0 {
		return errors.New("no DNS server")
	}
	if c.Ping == nil && (c.PingCount <= 0 || c.PingTimeout <= 0) {
		return errors.New("invalid ping settings")
	}
	if c.HTTPS == nil && (c.HTTPSCount <= 0 || c.HTTPSTimeout <= 0) {
		return errors.New("invalid https settings")
	}
	if c.Concurrency < 0 {
		return errors.New("invalid concurrency")
	}
	return nil
}

// NewFanoutProber builds the prober described by the config.
func (c Config) NewFanoutProber() *FanoutProber {
	f := &FanoutProber{
		Ping:        c.Ping,
		HTTPS:       c.HTTPS,
		Concurrency: c.Concurrency,
		Logger:      c.Logger,
	}
	if f.Ping == nil {
		p := NewICMPProber(c.PingCount, c.PingTimeout, c.PingPrivileged)
		p.Logger = c.Logger
		f.Ping = p
	}
	if f.HTTPS == nil {
		f.HTTPS = NewHTTPSProber(c.HTTPSCount, c.HTTPSTimeout)
	}
	return f
}

// Callbacks receive progress while Run is working.
type Callbacks struct {
	// OnStats receives every per-IP result as soon as it is available. It
	// is called concurrently.
	OnStats func(model.ProbeStats)

	// OnDomain receives the stats of the distinct candidates of a domain
	// once probing is over, in domain order.
	OnDomain func(domain string, stats []model.ProbeStats)
}

// Result is everything a run computed.
type Result struct {
	Candidates []model.CandidateSet
	Table      model.ResultTable
	Selection  model.Selection
	// Skipped lists the domains that resolved to no address.
	Skipped []string
	Probed  bool
}

// Run resolves the domains, probes the candidates when more than one DNS
// server is configured and selects one address per domain.
func Run(ctx context.Context, domains []string, cfg Config, cb Callbacks) (Result, error) {
	if err := cfg.validate(); err != nil {
		return Result{}, err
	}
	if len(domains) == 0 {
		return Result{}, errors.New("empty domain list")
	}
	logger := model.ValidLoggerOrDefault(cfg.Logger)

	res := Result{Candidates: resolver.ResolveAll(ctx, cfg.Resolvers, domains, logger)}
	single := len(cfg.Resolvers) == 1

	if !single {
		f := cfg.NewFanoutProber()
		f.OnStats = cb.OnStats
		res.Table = f.ProbeWithFallback(ctx, Universe(res.Candidates))
		res.Probed = true
		if cb.OnDomain != nil {
			for _, set := range res.Candidates {
				if len(set.IPs) > 0 {
					cb.OnDomain(set.Domain, DomainStats(set, res.Table))
				}
			}
		}
	}

	res.Selection, res.Skipped = SelectAll(res.Candidates, res.Table, single)
	for _, d := range res.Skipped {
		logger.Warnf("%s: no address resolved, skipping", d)
	}
	return res, nil
}
