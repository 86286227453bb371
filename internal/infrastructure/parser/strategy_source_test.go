package parser

import (
	"context"
	"testing"

	"TenderWatch/internal/config"
	"TenderWatch/internal/domain"
	"TenderWatch/internal/scanner"
)

type cannedScanner struct {
	name    string
	records []domain.Record
	got     []scanner.Request
}

func (c *cannedScanner) Name() string { return c.name }

func (c *cannedScanner) Scan(_ context.Context, req scanner.Request) ([]domain.Record, error) {
	c.got = append(c.got, req)
	return c.records, nil
}

func TestStrategySourceDeduplicatesAcrossSites(t *testing.T) {
	t.Parallel()

	canned := &cannedScanner{name: "canned", records: []domain.Record{
		{"id": "1"}, {"id": "2"}, {"id": "1"},
	}}
	reg := scanner.NewRegistry()
	reg.Register(canned)

	src := NewStrategySource(reg, []config.SourceConfig{
		{Name: "primary", Scanner: "canned", URL: "http://a", PageSize: 50},
		{Name: "mirror", Scanner: "canned", URL: "http://b"},
	}, nil)

	records, err := src.FetchAll(context.Background(), 4)
	if err != nil {
		t.Fatalf("FetchAll error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if len(canned.got) != 2 {
		t.Fatalf("expected 2 scans, got %d", len(canned.got))
	}
	if canned.got[0].MaxPages != 4 || canned.got[0].PageSize != 50 || canned.got[0].URL != "http://a" {
		t.Fatalf("unexpected request: %+v", canned.got[0])
	}
}

func TestStrategySourceUnknownScanner(t *testing.T) {
	t.Parallel()

	src := NewStrategySource(scanner.NewRegistry(), []config.SourceConfig{{Name: "x", Scanner: "nope"}}, nil)
	if _, err := src.FetchAll(context.Background(), 1); err == nil {
		t.Fatalf("expected error for unregistered scanner")
	}
}
