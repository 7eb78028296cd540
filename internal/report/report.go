// Package report renders diagnostics and rewrite directives.
package report

import (
	"fmt"
	"io"

	"example.com/dnsrewrite/internal/config"
	"example.com/dnsrewrite/internal/model"
)

// Usage explains the input files. It is printed on configuration errors.
const Usage = `Usage:
domains.txt contains the domains to query, one line per domain

server.txt contains the DNS server(s) to query, format is "IP:PORT,TCP ONLY", e.g. "8.8.8.8:53,false", one line per server
// comments the line

Result:
When there's only one DNS server added, the result will directly be output
When multiple DNS servers are added, the resolved IPs are pinged to choose the fastest one, or the first one if all fails ping
The output is in dnsmasq format, and you can copy it to your dnsmasq settings
`

// Directive renders one choice in the given output format.
func Directive(c model.Choice, format string) string {
	if format == config.FormatHosts {
		return fmt.Sprintf("%s %s", c.IP, c.Domain)
	}
	return fmt.Sprintf("address=/%s/%s", c.Domain, c.IP)
}

// WriteDirectives writes one directive per line, in selection order.
func WriteDirectives(w io.Writer, sel model.Selection, format string) error {
	for _, c := range sel {
		if _, err := fmt.Fprintln(w, Directive(c, format)); err != nil {
			return err
		}
	}
	return nil
}

// WriteDomainGroup writes the per domain summary of the probed candidates.
func WriteDomainGroup(w io.Writer, domain string, stats []model.ProbeStats) error {
	if _, err := fmt.Fprintf(w, ">> %s\n", domain); err != nil {
		return err
	}
	for _, st := range stats {
		if _, err := fmt.Fprintln(w, st); err != nil {
			return err
		}
	}
	return nil
}

// WriteInvalid writes one line per rejected raw address.
func WriteInvalid(w io.Writer, invalid []model.InvalidIP) error {
	for _, e := range invalid {
		if _, err := fmt.Fprintf(w, "ERROR IP ADDRESS: %s\n", e.Raw); err != nil {
			return err
		}
	}
	return nil
}
