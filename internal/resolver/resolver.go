// Package resolver queries the configured DNS servers for A records and
// builds the candidate set of every domain.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"example.com/dnsrewrite/internal/config"
	"example.com/dnsrewrite/internal/model"
	"github.com/miekg/dns"
)

// ErrNoResponse is returned when a server answers without a usable message.
var ErrNoResponse = errors.New("dns: no response")

// Lookuper resolves the IPv4 addresses of a domain using one DNS server.
type Lookuper interface {
	LookupA(ctx context.Context, domain string) ([]netip.Addr, error)
	String() string
}

// Client is a Lookuper talking to a single server. It is safe for
// concurrent use and reused for every query of a run.
type Client struct {
	server config.Server
	udp    *dns.Client
	tcp    *dns.Client
}

// NewClient creates a client for server. A zero timeout means dns.Client's
// default.
func NewClient(server config.Server, timeout time.Duration) *Client {
	return &Client{
		server: server,
		udp:    &dns.Client{Net: "udp", Timeout: timeout},
		tcp:    &dns.Client{Net: "tcp", Timeout: timeout},
	}
}

// NewClients creates one client per server, in server order.
func NewClients(servers []config.Server, timeout time.Duration) []Lookuper {
	out := make([]Lookuper, 0, len(servers))
	for _, s := range servers {
		out = append(out, NewClient(s, timeout))
	}
	return out
}

func (c *Client) String() string { return c.server.String() }

// LookupA queries the A records of domain. UDP answers that come back
// truncated are retried over TCP.
func (c *Client) LookupA(ctx context.Context, domain string) ([]netip.Addr, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(domain), dns.TypeA)
	m.RecursionDesired = true

	addr := c.server.Addr.String()
	var (
		r   *dns.Msg
		err error
	)
	if c.server.TCPOnly {
		r, _, err = c.tcp.ExchangeContext(ctx, m, addr)
	} else {
		r, _, err = c.udp.ExchangeContext(ctx, m, addr)
		if err == nil && r != nil && r.Truncated {
			r, _, err = c.tcp.ExchangeContext(ctx, m, addr)
		}
	}
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrNoResponse
	}
	if r.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("dns: %s", dns.RcodeToString[r.Rcode])
	}

	var out []netip.Addr
	for _, rr := range r.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		if ip, ok := netip.AddrFromSlice(a.A.To4()); ok {
			out = append(out, ip)
		}
	}
	return out, nil
}

// ResolveAll asks every lookuper, in order, for every domain and returns one
// candidate set per domain in input order. A failed query only means the
// domain gets no address from that server.
func ResolveAll(ctx context.Context, lookupers []Lookuper, domains []string, logger model.Logger) []model.CandidateSet {
	logger = model.ValidLoggerOrDefault(logger)

	sets := make([]model.CandidateSet, len(domains))
	for i, d := range domains {
		sets[i].Domain = d
	}
	for _, l := range lookupers {
		logger.Infof("DNS server is %s, queries done below will be based on this", l)
		for i, d := range domains {
			ips, err := l.LookupA(ctx, d)
			if err != nil {
				logger.Warnf("Query %s = **FAILED**", d)
				logger.Debugf("resolver: %s via %s: %s", d, l, err)
				continue
			}
			logger.Infof("Query %s = %s", d, joinAddrs(ips))
			sets[i].IPs = append(sets[i].IPs, ips...)
		}
	}
	return sets
}

func joinAddrs(ips []netip.Addr) string {
	parts := make([]string, len(ips))
	for i, ip := range ips {
		parts[i] = ip.String()
	}
	return strings.Join(parts, ", ")
}
