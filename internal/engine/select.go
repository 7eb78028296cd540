package engine

import (
	"errors"
	"net/netip"

	"example.com/dnsrewrite/internal/model"
)

// ErrNoCandidates is returned for a domain that resolved to no address.
var ErrNoCandidates = errors.New("no candidate ip")

// SelectBest picks the address of one domain.
//
// With a single DNS server the first resolved address wins and the table
// is not consulted. Otherwise the reachable candidate with the strictly
// lowest average RTT wins, the earliest candidate on ties. When no
// candidate is reachable the first one is returned.
func SelectBest(candidates []netip.Addr, table model.ResultTable, singleServer bool) (netip.Addr, error) {
	if len(candidates) == 0 {
		return netip.Addr{}, ErrNoCandidates
	}
	if singleServer {
		return candidates[0], nil
	}

	uniq := dedupe(candidates)
	var (
		best  netip.Addr
		found bool
	)
	bestRTT := model.NoRTT
	for _, ip := range uniq {
		st, ok := table[ip]
		if !ok || !st.Reachable() {
			continue
		}
		if !found || st.AverageRTT < bestRTT {
			best, bestRTT, found = ip, st.AverageRTT, true
		}
	}
	if !found {
		return uniq[0], nil
	}
	return best, nil
}

// SelectAll runs SelectBest for every set, keeping the input order.
// Domains without candidates are returned separately.
func SelectAll(sets []model.CandidateSet, table model.ResultTable, singleServer bool) (model.Selection, []string) {
	sel := make(model.Selection, 0, len(sets))
	var skipped []string
	for _, s := range sets {
		ip, err := SelectBest(s.IPs, table, singleServer)
		if err != nil {
			skipped = append(skipped, s.Domain)
			continue
		}
		sel = append(sel, model.Choice{Domain: s.Domain, IP: ip})
	}
	return sel, skipped
}

// DomainStats returns the stats of the distinct candidates of a set, in
// candidate order. Candidates missing from the table are left out.
func DomainStats(set model.CandidateSet, table model.ResultTable) []model.ProbeStats {
	var out []model.ProbeStats
	for _, ip := range dedupe(set.IPs) {
		if st, ok := table[ip]; ok {
			out = append(out, st)
		}
	}
	return out
}
