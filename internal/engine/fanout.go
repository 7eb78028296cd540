package engine

import (
	"context"
	"net/netip"
	"sync"

	"example.com/dnsrewrite/internal/model"
	"golang.org/x/sync/errgroup"
)

// FanoutProber probes sets of IPs concurrently, one task per IP.
type FanoutProber struct {
	Ping  Prober
	HTTPS Prober

	// Concurrency bounds the number of running tasks; zero means one
	// task per IP with no bound.
	Concurrency int

	// OnStats, when set, is called from the probing goroutines as soon as
	// an IP is done. Calls are concurrent and unordered.
	OnStats func(model.ProbeStats)

	Logger model.Logger
}

// ProbeAll probes every distinct IP with p and blocks until all tasks are
// done. The returned table has exactly one entry per distinct IP.
func (f *FanoutProber) ProbeAll(ctx context.Context, ips []netip.Addr, p Prober) model.ResultTable {
	ips = dedupe(ips)
	table := make(model.ResultTable, len(ips))
	var mu sync.Mutex

	var g errgroup.Group
	if f.Concurrency > 0 {
		g.SetLimit(f.Concurrency)
	}
	for _, ip := range ips {
		g.Go(func() error {
			st := Aggregate(ip, p.Technique(), p.Probe(ctx, ip))
			mu.Lock()
			table[ip] = st
			mu.Unlock()
			if f.OnStats != nil {
				f.OnStats(st)
			}
			return nil
		})
	}
	_ = g.Wait()
	return table
}

// ProbeWithFallback pings every IP, then probes with HTTPS exactly the IPs
// that never answered a ping. The result holds the ping stats of IPs with
// at least one reply and the HTTPS stats of all others, even when those
// failed too.
func (f *FanoutProber) ProbeWithFallback(ctx context.Context, ips []netip.Addr) model.ResultTable {
	logger := model.ValidLoggerOrDefault(f.Logger)
	ips = dedupe(ips)

	logger.Infof("Ping all %d queried IPs", len(ips))
	pinged := f.ProbeAll(ctx, ips, f.Ping)

	result := make(model.ResultTable, len(ips))
	var silent []netip.Addr
	for _, ip := range ips {
		st := pinged[ip]
		if st.Reachable() || f.HTTPS == nil {
			result[ip] = st
			continue
		}
		silent = append(silent, ip)
	}
	if len(silent) == 0 {
		return result
	}

	logger.Infof("Probe %d IPs without ping replies over HTTPS", len(silent))
	fallback := f.ProbeAll(ctx, silent, f.HTTPS)
	for _, ip := range silent {
		result[ip] = fallback[ip]
	}
	return result
}

// Universe returns the distinct addresses of all sets in first-seen order.
func Universe(sets []model.CandidateSet) []netip.Addr {
	var all []netip.Addr
	for _, s := range sets {
		all = append(all, s.IPs...)
	}
	return dedupe(all)
}

func dedupe(ips []netip.Addr) []netip.Addr {
	seen := make(map[netip.Addr]bool, len(ips))
	out := make([]netip.Addr, 0, len(ips))
	for _, ip := range ips {
		if !seen[ip] {
			seen[ip] = true
			out = append(out, ip)
		}
	}
	return out
}
