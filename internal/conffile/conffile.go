// Package conffile maintains a block of rewrite directives inside a dnsmasq
// configuration file or a hosts file, keeping the rest of the file intact.
package conffile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"example.com/dnsrewrite/internal/model"
	"example.com/dnsrewrite/internal/report"
)

const (
	beginMarker = "# dnsrewrite begin"
	endMarker   = "# dnsrewrite end"
)

// DefaultHostsPath returns the hosts file of the running system.
func DefaultHostsPath() string {
	if runtime.GOOS != "windows" {
		return "/etc/hosts"
	}
	root := os.Getenv("SystemRoot")
	if root == "" {
		root = `C:\Windows`
	}
	return filepath.Join(root, "System32", "drivers", "etc", "hosts")
}

// Read returns the content of path, or an empty string when it does not
// exist yet.
func Read(path string) (string, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// BuildManagedBlock renders the selection between the block markers.
func BuildManagedBlock(sel model.Selection, format string) string {
	var b strings.Builder
	b.WriteString(beginMarker)
	b.WriteString("\n")
	for _, c := range sel {
		if !c.IP.IsValid() || strings.TrimSpace(c.Domain) == "" {
			continue
		}
		b.WriteString(report.Directive(c, format))
		b.WriteString("\n")
	}
	b.WriteString(endMarker)
	b.WriteString("\n")
	return b.String()
}

// ApplyManagedBlock puts block in place of the first managed block of
// existing, or appends it when there is none. Further managed blocks are
// dropped.
func ApplyManagedBlock(existing string, block string) string {
	block = normalizeNewlines(block)
	var (
		out      []string
		inBlock  bool
		replaced bool
	)
	for _, line := range strings.Split(normalizeNewlines(existing), "\n") {
		switch marker := strings.TrimSpace(line); {
		case inBlock:
			inBlock = marker != endMarker
		case marker == beginMarker:
			inBlock = true
			if !replaced {
				out = append(out, strings.TrimSuffix(block, "\n"))
				replaced = true
			}
		default:
			out = append(out, line)
		}
	}
	next := strings.TrimRight(strings.Join(out, "\n"), "\n")
	if !replaced {
		if next != "" {
			next += "\n"
		}
		return next + block
	}
	return next + "\n"
}

// WriteWithBackup updates the managed block of path. When the file already
// exists its previous content is saved next to it first and backupPath
// names the copy; otherwise backupPath is empty.
func WriteWithBackup(path string, sel model.Selection, format string) (backupPath string, newContent string, err error) {
	orig, err := Read(path)
	if err != nil {
		return "", "", err
	}
	newContent = ApplyManagedBlock(orig, BuildManagedBlock(sel, format))

	if _, statErr := os.Stat(path); statErr == nil {
		backupPath = fmt.Sprintf("%s.bak.%s", path, time.Now().Format("20060102_150405"))
		if err := os.WriteFile(backupPath, []byte(orig), 0644); err != nil {
			return "", "", err
		}
	}
	if err := writeKeepingMode(path, []byte(newContent)); err != nil {
		return "", "", err
	}
	return backupPath, newContent, nil
}

// RestoreBackup copies backupPath over path. The backup must be a sibling
// of path named after it, as WriteWithBackup creates them.
func RestoreBackup(backupPath, path string) error {
	if strings.TrimSpace(backupPath) == "" {
		return errors.New("empty backup path")
	}
	if !IsBackupOf(backupPath, path) {
		return fmt.Errorf("%s is not a backup of %s", backupPath, path)
	}
	b, err := os.ReadFile(backupPath)
	if err != nil {
		return err
	}
	return writeKeepingMode(path, b)
}

// IsBackupOf tells whether backupPath lives next to path and is named
// "<name>.bak" or "<name>.bak.<suffix>".
func IsBackupOf(backupPath, path string) bool {
	if filepath.Clean(filepath.Dir(backupPath)) != filepath.Clean(filepath.Dir(path)) {
		return false
	}
	rest, ok := strings.CutPrefix(filepath.Base(backupPath), filepath.Base(path)+".bak")
	return ok && (rest == "" || strings.HasPrefix(rest, "."))
}

func writeKeepingMode(path string, data []byte) error {
	mode := os.FileMode(0644)
	if st, err := os.Stat(path); err == nil {
		mode = st.Mode().Perm()
	}
	return os.WriteFile(path, data, mode)
}

func normalizeNewlines(s string) string {
	return strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(s)
}
