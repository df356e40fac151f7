// Package receipt produces the audit receipt of a review run: who ran it,
// where and when, and a SHA-256 digest of every file read or written.
package receipt

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentstation/accessreview/pkg/constants"
	"github.com/agentstation/accessreview/pkg/errors"
	"github.com/agentstation/accessreview/pkg/tabular"
)

// File is one audited file.
type File struct {
	Path        string
	Description string
	Size        int64
	Modified    time.Time
	SHA256      string
}

// Receipt collects the audit trail of one run. It is not safe for
// concurrent use.
type Receipt struct {
	RunID     string
	Generated time.Time
	User      string
	Hostname  string
	Files     []File
}

// Option configures a Receipt.
type Option func(*Receipt)

// WithRunID overrides the generated run ID.
func WithRunID(id string) Option {
	return func(r *Receipt) { r.RunID = id }
}

// WithTime overrides the generation time.
func WithTime(t time.Time) Option {
	return func(r *Receipt) { r.Generated = t }
}

// WithUser overrides the user name.
func WithUser(name string) Option {
	return func(r *Receipt) { r.User = name }
}

// WithHostname overrides the host name.
func WithHostname(name string) Option {
	return func(r *Receipt) { r.Hostname = name }
}

// New starts a receipt for a run happening now, on this host, as the
// current user.
func New(opts ...Option) *Receipt {
	r := &Receipt{
		RunID:     uuid.NewString(),
		Generated: time.Now(),
		User:      currentUser(),
	}
	if host, err := os.Hostname(); err == nil {
		r.Hostname = host
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AuditFile hashes the file at path and adds it to the receipt.
func (r *Receipt) AuditFile(path, description string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.WrapIO("open", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errors.WrapIO("stat", path, err)
	}
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return errors.WrapIO("hash", path, err)
	}

	r.Files = append(r.Files, File{
		Path:        path,
		Description: description,
		Size:        n,
		Modified:    info.ModTime(),
		SHA256:      hex.EncodeToString(h.Sum(nil)),
	})
	return nil
}

// Bytes renders the receipt as text.
func (r *Receipt) Bytes() []byte {
	var b strings.Builder
	fmt.Fprintln(&b, "User Access Review Receipt")
	fmt.Fprintln(&b, "==========================")
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Run ID: %s\n", r.RunID)
	fmt.Fprintf(&b, "Generated: %s\n", r.Generated.Format(constants.TimeFormatReceipt))
	fmt.Fprintf(&b, "User: %s\n", r.User)
	if r.Hostname != "" {
		fmt.Fprintf(&b, "Hostname: %s\n", r.Hostname)
	}
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "Processed Files")
	fmt.Fprintln(&b, "---------------")
	for _, f := range r.Files {
		fmt.Fprintf(&b, "File: %s\n", f.Path)
		fmt.Fprintf(&b, "Description: %s\n", f.Description)
		fmt.Fprintf(&b, "Size: %d bytes\n", f.Size)
		fmt.Fprintf(&b, "Modified: %s\n", f.Modified.In(r.Generated.Location()).Format(constants.TimeFormatReceipt))
		fmt.Fprintf(&b, "SHA256: %s\n", f.SHA256)
		fmt.Fprintln(&b)
	}
	return []byte(b.String())
}

// Save writes the receipt to path and returns the SHA-256 of its content.
func (r *Receipt) Save(path string) (string, error) {
	content := r.Bytes()
	err := tabular.WriteFile(path, func(w io.Writer) error {
		_, err := w.Write(content)
		return err
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:]), nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	for _, key := range []string{"USER", "USERNAME", "LOGNAME"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return constants.NotAvailable
}
