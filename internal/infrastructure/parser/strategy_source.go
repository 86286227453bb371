package parser

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	"TenderWatch/internal/config"
	"TenderWatch/internal/domain"
	"TenderWatch/internal/ports"
	"TenderWatch/internal/scanner"
	"TenderWatch/internal/tender"
)

// StrategySource implements RecordFetcher via registered scanner strategies.
type StrategySource struct {
	registry *scanner.Registry
	sites    []config.SourceConfig
	logger   *slog.Logger
}

var _ ports.RecordFetcher = (*StrategySource)(nil)

// NewStrategySource wires scanner registry with config-defined sources.
func NewStrategySource(reg *scanner.Registry, sites []config.SourceConfig, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		sites:    sites,
		logger:   log,
	}
}

// FetchAll iterates over configured sources and executes their scanners.
// Records sharing an identity are kept once, first occurrence wins.
func (s *StrategySource) FetchAll(ctx context.Context, maxPages int) ([]domain.Record, error) {
	if s.registry == nil {
		return nil, errors.New("scanner registry is not configured")
	}

	s.debug("fetch all", "sites", len(s.sites), "max_pages", maxPages)

	var aggregated []domain.Record
	seen := map[string]struct{}{}
	for _, site := range s.sites {
		s.debug("process site", "site", site.Name, "scanner", site.Scanner)
		strategy, err := s.registry.Resolve(site.Scanner)
		if err != nil {
			return nil, errors.Wrapf(err, "site %s", site.Name)
		}

		req := scanner.Request{
			SiteName: site.Name,
			URL:      site.URL,
			MaxPages: maxPages,
			PageSize: site.PageSize,
			Options:  site.Options,
			Logger:   s.logger,
		}

		results, err := strategy.Scan(ctx, req)
		if err != nil {
			return nil, errors.Wrapf(err, "scan site %s", site.Name)
		}

		for _, r := range results {
			if id := tender.ID(r); id != "" {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
			}
			aggregated = append(aggregated, r)
		}
		s.debug("site produced records", "site", site.Name, "count", len(results))
	}

	s.debug("strategy source done", "total_records", len(aggregated))
	return aggregated, nil
}

func (s *StrategySource) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
