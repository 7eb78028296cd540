package engine

import (
	"context"
	"net/netip"
	"strconv"
	"strings"

	"example.com/dnsrewrite/internal/model"
)

// ParseDottedQuad parses four dot separated decimal segments in 0..255.
// Unlike netip.ParseAddr it accepts leading zeros.
func ParseDottedQuad(s string) (netip.Addr, error) {
	segments := strings.Split(s, ".")
	if len(segments) != 4 {
		return netip.Addr{}, model.InvalidIP{Raw: s, Reason: "expected four segments"}
	}
	var b [4]byte
	for i, seg := range segments {
		if seg == "" || strings.TrimLeft(seg, "0123456789") != "" {
			return netip.Addr{}, model.InvalidIP{Raw: s, Reason: "segment " + strconv.Itoa(i+1) + " is not a number"}
		}
		v, err := strconv.Atoi(seg)
		if err != nil || v > 255 {
			return netip.Addr{}, model.InvalidIP{Raw: s, Reason: "segment " + strconv.Itoa(i+1) + " out of range"}
		}
		b[i] = byte(v)
	}
	return netip.AddrFrom4(b), nil
}

// ValidDottedQuad tells whether s is a dotted quad IPv4 address.
func ValidDottedQuad(s string) bool {
	_, err := ParseDottedQuad(s)
	return err == nil
}

// SplitRawIPs splits a raw address list separated by newlines or commas.
// Empty tokens are dropped.
func SplitRawIPs(text string) []string {
	var out []string
	for _, token := range strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	}) {
		if token = strings.TrimSpace(token); token != "" {
			out = append(out, token)
		}
	}
	return out
}

// ProbeRawList validates raw addresses and probes the valid ones with p.
// Invalid entries are never probed and are returned in input order.
func (f *FanoutProber) ProbeRawList(ctx context.Context, raws []string, p Prober) (model.ResultTable, []model.InvalidIP) {
	var (
		valid   []netip.Addr
		invalid []model.InvalidIP
	)
	for _, raw := range raws {
		ip, err := ParseDottedQuad(raw)
		if err != nil {
			invalid = append(invalid, err.(model.InvalidIP))
			continue
		}
		valid = append(valid, ip)
	}
	return f.ProbeAll(ctx, valid, p), invalid
}
