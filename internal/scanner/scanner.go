package scanner

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	"TenderWatch/internal/domain"
)

// Request carries all parameters required to execute a scan.
type Request struct {
	SiteName string
	URL      string
	MaxPages int
	PageSize int
	Options  map[string]string
	Logger   *slog.Logger
}

// Scanner captures a single upstream provider implementation.
type Scanner interface {
	Name() string
	Scan(ctx context.Context, req Request) ([]domain.Record, error)
}

// Registry keeps a mapping from scanner names to their implementations.
type Registry struct {
	scanners map[string]Scanner
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{scanners: map[string]Scanner{}}
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(scanner Scanner) {
	if r.scanners == nil {
		r.scanners = map[string]Scanner{}
	}
	r.scanners[scanner.Name()] = scanner
}

// Resolve returns a scanner by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Scanner, error) {
	if scanner, ok := r.scanners[name]; ok {
		return scanner, nil
	}
	return nil, errors.Newf("scanner %s is not registered", name)
}
