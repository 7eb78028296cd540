package main

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"example.com/dnsrewrite/internal/report"
	"github.com/miekg/dns"
	"github.com/pkg/errors"
)

func startDNSServer(t *testing.T, records map[string]string) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
			resp := new(dns.Msg)
			resp.SetReply(req)
			q := req.Question[0]
			if ip, ok := records[q.Name]; ok {
				resp.Answer = append(resp.Answer, &dns.A{
					Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
					A:   net.ParseIP(ip),
				})
			} else {
				resp.Rcode = dns.RcodeServerFailure
			}
			_ = w.WriteMsg(resp)
		}),
	}
	go func() { _ = srv.ActivateAndServe() }()
	t.Cleanup(func() { _ = srv.Shutdown() })
	<-started
	return pc.LocalAddr().String()
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRunSingleServer(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	addr := startDNSServer(t, map[string]string{
		"a.example.": "1.1.1.1",
		"b.example.": "3.3.3.3",
	})
	writeFile(t, dir, "domains.txt", "a.example\nb.example\nmissing.example\n")
	writeFile(t, dir, "server.txt", "// local\n"+addr+",false\n")
	conf := filepath.Join(dir, "rewrite.conf")

	stdout, stderr, err := execute(t, "run", "--write", conf)
	if err != nil {
		t.Fatal(err)
	}
	want := "address=/a.example/1.1.1.1\naddress=/b.example/3.3.3.3\n"
	if stdout != want {
		t.Fatalf("got %q, stderr:\n%s", stdout, stderr)
	}
	written, err := os.ReadFile(conf)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(written), want) {
		t.Fatalf("managed block not written:\n%s", written)
	}
}

func TestRunConfigurationError(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, "domains.txt", "a.example\n")
	writeFile(t, dir, "server.txt", "8.8.8.8,false\n")

	stdout, _, err := execute(t, "run")
	if err == nil {
		t.Fatal("expected a configuration error")
	}
	if stdout != "" {
		t.Fatalf("unexpected output %q", stdout)
	}
}

func TestPingRejectsInvalidAddresses(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	ips := writeFile(t, dir, "ip.txt", "300.1.1.1,x\n")

	stdout, stderr, err := execute(t, "ping", "--ips", ips)
	if err != nil {
		t.Fatal(err)
	}
	if stdout != "ALL DONE\n" {
		t.Fatalf("got %q", stdout)
	}
	for _, want := range []string{"ERROR IP ADDRESS: 300.1.1.1", "ERROR IP ADDRESS: x"} {
		if !strings.Contains(stderr, want) {
			t.Fatalf("stderr misses %q:\n%s", want, stderr)
		}
	}
}

func TestPingSeveralAddresses(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	ips := writeFile(t, dir, "ip.txt", "127.0.0.1,127.0.0.2\n127.0.0.3\n")

	stdout, stderr, err := execute(t, "ping", "--ips", ips, "--https",
		"--https-count", "1", "--https-timeout", "200ms")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(stdout, "\n"), "\n")
	if len(lines) != 4 || lines[3] != "ALL DONE" {
		t.Fatalf("got %q, stderr:\n%s", stdout, stderr)
	}
	for _, ip := range []string{"127.0.0.1", "127.0.0.2", "127.0.0.3"} {
		if !strings.Contains(stdout, ip+", Success Rate = ") {
			t.Fatalf("no stats line for %s in %q", ip, stdout)
		}
	}
}

func TestPrintError(t *testing.T) {
	type testcase struct {
		name      string
		err       error
		withUsage bool
	}
	testcases := []testcase{{
		name:      "configuration error",
		err:       configError{errors.Wrap(errors.New("no such file"), "loading server list")},
		withUsage: true,
	}, {
		name:      "wrapped configuration error",
		err:       errors.Wrap(configError{errors.New("bad line")}, "run"),
		withUsage: true,
	}, {
		name: "other error",
		err:  errors.New("restore: missing --write or --hosts"),
	}}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			printError(&out, tc.err)
			if !strings.HasPrefix(out.String(), "Error:\n"+tc.err.Error()+"\n") {
				t.Fatalf("got %q", out.String())
			}
			if got := strings.Contains(out.String(), report.Usage); got != tc.withUsage {
				t.Fatalf("usage printed: %v, want %v", got, tc.withUsage)
			}
		})
	}
}

func TestRestore(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	backup := writeFile(t, dir, "rewrite.conf.bak", "server=9.9.9.9\n")
	target := writeFile(t, dir, "rewrite.conf", "changed\n")

	if _, _, err := execute(t, "restore", backup, "--write", target); err != nil {
		t.Fatal(err)
	}
	b, _ := os.ReadFile(target)
	if string(b) != "server=9.9.9.9\n" {
		t.Fatalf("got %q", b)
	}
	if _, _, err := execute(t, "restore", backup); err == nil {
		t.Fatal("expected an error without a target")
	}
}
