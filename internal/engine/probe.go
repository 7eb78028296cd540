package engine

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"example.com/dnsrewrite/internal/model"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// Prober measures one IP with one technique. Probe always returns exactly
// one outcome per attempt: failures are outcomes, never errors.
type Prober interface {
	Technique() model.Technique
	Probe(ctx context.Context, ip netip.Addr) []model.ProbeOutcome
}

const (
	DefaultPingCount    = 20
	DefaultPingTimeout  = time.Second
	DefaultHTTPSCount   = 20
	DefaultHTTPSTimeout = 3 * time.Second
)

// DefaultPayload is the echo request body.
var DefaultPayload = []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

// protocolICMP is the IANA protocol number of ICMP for IPv4.
const protocolICMP = 1

// ICMPProber sends Count sequential echo requests. Unless Privileged is
// set it uses unprivileged datagram sockets (net.ipv4.ping_group_range on
// Linux); raw sockets need CAP_NET_RAW. A socket that cannot be opened
// turns every attempt into a failure and is reported once to Logger.
type ICMPProber struct {
	Count      int
	Timeout    time.Duration
	Payload    []byte
	Privileged bool
	Logger     model.Logger

	listen     func(network, address string) (*icmp.PacketConn, error)
	listenWarn sync.Once
}

// NewICMPProber returns a prober with the default payload.
func NewICMPProber(count int, timeout time.Duration, privileged bool) *ICMPProber {
	return &ICMPProber{
		Count:      count,
		Timeout:    timeout,
		Payload:    DefaultPayload,
		Privileged: privileged,
		listen:     icmp.ListenPacket,
	}
}

func (p *ICMPProber) Technique() model.Technique { return model.TechniqueICMP }

func (p *ICMPProber) Probe(ctx context.Context, ip netip.Addr) []model.ProbeOutcome {
	out := make([]model.ProbeOutcome, p.Count)
	if !ip.Is4() {
		return out
	}
	network := "udp4"
	if p.Privileged {
		network = "ip4:icmp"
	}
	listen := p.listen
	if listen == nil {
		listen = icmp.ListenPacket
	}
	conn, err := listen(network, "0.0.0.0")
	if err != nil {
		p.listenWarn.Do(func() {
			model.ValidLoggerOrDefault(p.Logger).Warnf(
				"cannot open %s ICMP socket, every ping fails: %s", network, err)
		})
		return out
	}
	defer conn.Close()

	var dst net.Addr = &net.IPAddr{IP: ip.AsSlice()}
	if !p.Privileged {
		dst = &net.UDPAddr{IP: ip.AsSlice()}
	}
	id := rand.Intn(1 << 16)
	for i := range out {
		out[i] = p.echo(ctx, conn, dst, ip, id, i&0xffff)
	}
	return out
}

func (p *ICMPProber) echo(ctx context.Context, conn *icmp.PacketConn, dst net.Addr, ip netip.Addr, id, seq int) model.ProbeOutcome {
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{ID: id, Seq: seq, Data: p.Payload},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return model.ProbeOutcome{}
	}
	deadline := time.Now().Add(p.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return model.ProbeOutcome{}
	}

	start := time.Now()
	if _, err := conn.WriteTo(wb, dst); err != nil {
		return model.ProbeOutcome{}
	}
	rb := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(rb)
		if err != nil {
			return model.ProbeOutcome{}
		}
		if peerAddr(peer) != ip {
			continue
		}
		reply, err := icmp.ParseMessage(protocolICMP, rb[:n])
		if err != nil || reply.Type != ipv4.ICMPTypeEchoReply {
			continue
		}
		echo, ok := reply.Body.(*icmp.Echo)
		if !ok || echo.Seq != seq || !bytes.Equal(echo.Data, p.Payload) {
			continue
		}
		// the kernel rewrites the identifier of unprivileged sockets
		if p.Privileged && echo.ID != id {
			continue
		}
		return model.ProbeOutcome{Succeeded: true, RTT: time.Since(start)}
	}
}

func peerAddr(addr net.Addr) netip.Addr {
	var ip net.IP
	switch a := addr.(type) {
	case *net.UDPAddr:
		ip = a.IP
	case *net.IPAddr:
		ip = a.IP
	}
	out, _ := netip.AddrFromSlice(ip)
	return out.Unmap()
}

// HTTPSProber issues Count sequential GET requests to https://{ip}/ without
// verifying the certificate. Any HTTP response counts as a success.
type HTTPSProber struct {
	Count int
	// Port overrides 443 when not zero.
	Port   int
	client *http.Client
}

// NewHTTPSProber returns a prober sharing one client across all probes.
func NewHTTPSProber(count int, timeout time.Duration) *HTTPSProber {
	transport := &http.Transport{
		Proxy: nil,
		DialContext: (&net.Dialer{
			Timeout: timeout,
		}).DialContext,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
		TLSHandshakeTimeout: timeout,
		MaxIdleConnsPerHost: 1,
		IdleConnTimeout:     30 * time.Second,
	}
	return &HTTPSProber{
		Count:  count,
		client: &http.Client{Transport: transport, Timeout: timeout},
	}
}

func (p *HTTPSProber) Technique() model.Technique { return model.TechniqueHTTPS }

func (p *HTTPSProber) Probe(ctx context.Context, ip netip.Addr) []model.ProbeOutcome {
	out := make([]model.ProbeOutcome, p.Count)
	url := p.url(ip)
	for i := range out {
		out[i] = p.get(ctx, url)
	}
	return out
}

func (p *HTTPSProber) url(ip netip.Addr) string {
	host := ip.String()
	if p.Port != 0 && p.Port != 443 {
		host = net.JoinHostPort(host, strconv.Itoa(p.Port))
	}
	return "https://" + host + "/"
}

func (p *HTTPSProber) get(ctx context.Context, url string) model.ProbeOutcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.ProbeOutcome{}
	}
	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return model.ProbeOutcome{}
	}
	_, err = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	resp.Body.Close()
	if err != nil {
		return model.ProbeOutcome{}
	}
	return model.ProbeOutcome{Succeeded: true, RTT: time.Since(start)}
}
