package domain

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type countingLogger struct {
	warnings int
}

func (l *countingLogger) Debug(msg string)                       {}
func (l *countingLogger) Debugf(format string, v ...interface{}) {}
func (l *countingLogger) Info(msg string)                        {}
func (l *countingLogger) Infof(format string, v ...interface{})  {}
func (l *countingLogger) Warn(msg string)                        { l.warnings++ }
func (l *countingLogger) Warnf(format string, v ...interface{})  { l.warnings++ }

func TestParseDomains(t *testing.T) {
	in := `# comment
Example.com
foo.example.com.

bücher.example
example.com
ok.example.com # tail
`
	logger := &countingLogger{}
	ds, err := ParseDomains(in, logger)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"example.com", "foo.example.com", "xn--bcher-kva.example", "ok.example.com"}
	if diff := cmp.Diff(want, ds); diff != "" {
		t.Fatal(diff)
	}
	// one blank line and one duplicate
	if logger.warnings != 2 {
		t.Fatalf("got %d warnings", logger.warnings)
	}
}

func TestParseDomainsInvalid(t *testing.T) {
	_, err := ParseDomains("good.example\nbad domain.example\n-bad.example\n", nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, want := range []string{"line 2", "line 3"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %q", err, want)
		}
	}
}

func TestParseDomainsUnderscore(t *testing.T) {
	ds, err := ParseDomains("a.example\n_acme-challenge.Example.com\nmy_host.example\n", nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a.example", "_acme-challenge.example.com", "my_host.example"}
	if diff := cmp.Diff(want, ds); diff != "" {
		t.Fatal(diff)
	}
}

func TestParseDomainsEmpty(t *testing.T) {
	if _, err := ParseDomains("\n\n# nothing\n", nil); !errors.Is(err, ErrNoDomains) {
		t.Fatalf("got %v", err)
	}
}

func TestReadDomainsFromDirectives(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rewrite.conf")
	content := "# managed\naddress=/a.example/1.1.1.1\naddress=/b.example/c.example/2.2.2.2\n127.0.0.1 localhost d.example\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	ds, err := ReadDomainsFromDirectives(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a.example", "b.example", "c.example", "localhost", "d.example"}
	if diff := cmp.Diff(want, ds); diff != "" {
		t.Fatal(diff)
	}
}

func TestEnsureReadableFile(t *testing.T) {
	dir := t.TempDir()
	if _, err := EnsureReadableFile(dir); err == nil {
		t.Fatal("expected an error for a directory")
	}
	if _, err := EnsureReadableFile(" "); err == nil {
		t.Fatal("expected an error for an empty path")
	}
	path := filepath.Join(dir, "domains.txt")
	if err := os.WriteFile(path, []byte("a.example\n"), 0644); err != nil {
		t.Fatal(err)
	}
	abs, err := EnsureReadableFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(abs) {
		t.Fatalf("not absolute: %s", abs)
	}
}
