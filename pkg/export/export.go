// Package export renders accounts as configurable text and the database
// as a SQL script.
package export

import (
	"context"
	"fmt"
	"io"
	"time"
)

// DefaultVersion is written into SQL export headers unless overridden.
const DefaultVersion = "0.1.0"

// Dumper writes the database as SQL statements. *vault.Vault implements it.
type Dumper interface {
	DumpSQL(ctx context.Context, w io.Writer) error
}

// Renderer produces export output.
type Renderer struct {
	now     func() time.Time
	version string
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithClock sets the time source for export timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) { r.now = now }
}

// WithVersion sets the version written into SQL headers.
func WithVersion(v string) Option {
	return func(r *Renderer) { r.version = v }
}

// New returns a Renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{now: time.Now, version: DefaultVersion}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Renderer) timestamp() string {
	return r.now().Local().Format("2006-01-02 15:04:05")
}

// SQL writes a header comment followed by the full database dump.
func (r *Renderer) SQL(ctx context.Context, w io.Writer, d Dumper) error {
	_, err := fmt.Fprintf(w, "-- Account Vault Database Export\n-- Export Time: %s\n-- Version: %s\n\n",
		r.timestamp(), r.version)
	if err != nil {
		return fmt.Errorf("export: failed to write header: %w", err)
	}
	if err := d.DumpSQL(ctx, w); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}
