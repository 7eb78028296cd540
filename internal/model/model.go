package model

import (
	"fmt"
	"math"
	"net/netip"
	"strconv"
	"time"
)

// Technique names a probing technique.
type Technique string

const (
	TechniqueICMP  Technique = "ICMP"
	TechniqueHTTPS Technique = "HTTPS"
)

// NoRTT is the average RTT of an IP without any successful attempt. It
// compares greater than every measured RTT.
var NoRTT = math.Inf(1)

// CandidateSet is the ordered list of addresses a domain resolved to, one
// server after the other. Duplicates are allowed.
type CandidateSet struct {
	Domain string
	IPs    []netip.Addr
}

// ProbeOutcome is a single timed probe attempt. RTT is meaningless unless
// Succeeded is true.
type ProbeOutcome struct {
	Succeeded bool
	RTT       time.Duration
}

// ProbeStats aggregates the sample collected for one IP by one technique.
type ProbeStats struct {
	IP          netip.Addr
	Technique   Technique
	Total       int
	Successes   int
	SuccessRate float64
	// AverageRTT is in milliseconds, NoRTT when SuccessRate is zero.
	AverageRTT float64
}

func (s ProbeStats) Failures() int { return s.Total - s.Successes }

// Reachable tells whether at least one attempt succeeded.
func (s ProbeStats) Reachable() bool { return s.SuccessRate > 0 }

func (s ProbeStats) String() string {
	rtt := "n/a"
	if !math.IsInf(s.AverageRTT, 1) {
		rtt = strconv.FormatFloat(s.AverageRTT, 'f', 2, 64)
	}
	return fmt.Sprintf("%s, Success Rate = %.0f%%, Avg RTT (ms) = %s, by %s",
		s.IP, s.SuccessRate*100, rtt, s.Technique)
}

// ResultTable maps every probed IP to the stats that represent it.
type ResultTable map[netip.Addr]ProbeStats

// Choice is the address selected for a domain.
type Choice struct {
	Domain string
	IP     netip.Addr
}

// Selection lists one Choice per domain, in input order.
type Selection []Choice

// InvalidIP is a raw address rejected before probing.
type InvalidIP struct {
	Raw    string
	Reason string
}

func (e InvalidIP) Error() string {
	return fmt.Sprintf("invalid ip address %q: %s", e.Raw, e.Reason)
}
