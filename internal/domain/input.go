package domain

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"example.com/dnsrewrite/internal/model"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/net/idna"
)

// ErrNoDomains is returned when an input yields no domain at all.
var ErrNoDomains = errors.New("empty domain list")

// lookupProfile maps like idna.Lookup but keeps underscores, which DNS
// names such as _acme-challenge.example.com carry.
var lookupProfile = idna.New(
	idna.MapForLookup(),
	idna.BidiRule(),
	idna.StrictDomainName(false),
)

// NormalizeDomain trims, lowercases and converts s to its ASCII form. It
// returns false when s is not a valid DNS name: letters, digits, hyphens
// and underscores, no label starting or ending with a hyphen.
func NormalizeDomain(s string) (string, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return "", false
	}
	ascii, err := lookupProfile.ToASCII(s)
	if err != nil {
		return "", false
	}
	ascii = strings.ToLower(ascii)
	if !isDomainName(ascii) {
		return "", false
	}
	return ascii, true
}

func isDomainName(s string) bool {
	if len(s) == 0 || len(s) > 253 {
		return false
	}
	if strings.Contains(s, "..") {
		return false
	}
	labels := strings.Split(s, ".")
	for _, label := range labels {
		if label == "" || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for i := 0; i < len(label); i++ {
			ch := label[i]
			switch {
			case ch >= 'a' && ch <= 'z':
			case ch >= '0' && ch <= '9':
			case ch == '-' || ch == '_':
			default:
				return false
			}
		}
	}
	return true
}

// ParseDomains parses a domain list with one domain per line. Blank lines
// and '#' comments are skipped, blank lines with a warning. Every invalid
// line is reported in the returned error. Duplicates keep the first line.
func ParseDomains(text string, logger model.Logger) ([]string, error) {
	logger = model.ValidLoggerOrDefault(logger)

	var (
		out    []string
		result *multierror.Error
	)
	seen := map[string]bool{}

	text = strings.TrimRight(normalizeNewlines(text), "\n")
	for n, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			logger.Warnf("domains: skipping blank line %d", n+1)
			continue
		}
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		d, ok := NormalizeDomain(line)
		if !ok {
			result = multierror.Append(result, fmt.Errorf("line %d: invalid domain %q", n+1, line))
			continue
		}
		if seen[d] {
			logger.Warnf("domains: duplicate domain %s on line %d", d, n+1)
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNoDomains
	}
	return out, nil
}

// ReadDomainsFromFile reads and parses a domain list file.
func ReadDomainsFromFile(path string, logger model.Logger) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseDomains(string(b), logger)
}

// ReadDomainsFromDirectives collects the domains of an existing dnsmasq
// configuration ("address=/domain/ip") or hosts file ("ip domain...").
func ReadDomainsFromDirectives(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	seen := map[string]bool{}
	var out []string
	add := func(token string) {
		if d, ok := NormalizeDomain(token); ok && !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(line, "address=/"); ok {
			// address=/a.example/b.example/1.2.3.4
			parts := strings.Split(rest, "/")
			for _, token := range parts[:len(parts)-1] {
				add(token)
			}
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		for _, token := range fields[1:] {
			add(token)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNoDomains
	}
	return out, nil
}

// EnsureReadableFile returns the absolute path of a regular file.
func EnsureReadableFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	st, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if st.IsDir() {
		return "", errors.New("path is a directory")
	}
	return abs, nil
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return s
}
