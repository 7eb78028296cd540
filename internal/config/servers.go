package config

import (
	"bufio"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// ErrNoServers is returned when a server list contains no server.
var ErrNoServers = errors.New("no DNS server configured")

// Server is a DNS server entry of the server list.
type Server struct {
	Addr    netip.AddrPort
	TCPOnly bool
}

func (s Server) String() string { return s.Addr.String() }

// ParseServerLine parses a single "IP:PORT,USE_TCP_ONLY" entry.
func ParseServerLine(line string) (Server, error) {
	addr, tcp, ok := strings.Cut(strings.TrimSpace(line), ",")
	if !ok {
		return Server{}, fmt.Errorf("missing USE_TCP_ONLY field in %q", line)
	}
	ap, err := netip.ParseAddrPort(strings.TrimSpace(addr))
	if err != nil {
		return Server{}, err
	}
	if !ap.Addr().Is4() {
		return Server{}, fmt.Errorf("not an IPv4 endpoint: %s", ap)
	}
	tcpOnly, err := strconv.ParseBool(strings.TrimSpace(tcp))
	if err != nil {
		return Server{}, fmt.Errorf("invalid USE_TCP_ONLY value %q", strings.TrimSpace(tcp))
	}
	return Server{Addr: ap, TCPOnly: tcpOnly}, nil
}

// ParseServers reads a server list. Lines starting with "//" and blank
// lines are skipped. All malformed lines are reported together.
func ParseServers(r io.Reader) ([]Server, error) {
	var (
		out    []Server
		result *multierror.Error
	)
	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		s, err := ParseServerLine(line)
		if err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "line %d", n))
			continue
		}
		out = append(out, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNoServers
	}
	return out, nil
}

// LoadServers reads the server list stored at path.
func LoadServers(path string) ([]Server, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "loading server list")
	}
	defer f.Close()
	servers, err := ParseServers(f)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing server list %s", path)
	}
	return servers, nil
}
