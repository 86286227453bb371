package parser

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"

	"TenderWatch/internal/domain"
	"TenderWatch/internal/scanner"
)

const (
	ppipBaseURL     = "https://tenders.go.ke/api/active-tenders"
	ppipPageSize    = 200
	ppipUserAgent   = "TenderWatch/2.0"
	ppipDefaultPage = 3
)

// PPIPScanner pages through the public procurement portal's active-tenders API.
type PPIPScanner struct {
	client *http.Client
}

// NewPPIPScanner wires an HTTP client; a nil client gets a 45s timeout.
func NewPPIPScanner(client *http.Client) *PPIPScanner {
	if client == nil {
		client = &http.Client{Timeout: 45 * time.Second}
	}
	return &PPIPScanner{client: client}
}

// Name identifies the strategy inside the registry.
func (p *PPIPScanner) Name() string {
	return "ppip"
}

// Scan fetches pages 1..MaxPages, stopping at the first empty page.
// Failed pages are retried once after the sweep; pages that fail twice are
// skipped.
func (p *PPIPScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Record, error) {
	base := req.URL
	if base == "" {
		base = ppipBaseURL
	}
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = ppipPageSize
	}
	maxPages := req.MaxPages
	if maxPages <= 0 {
		maxPages = ppipDefaultPage
	}
	logger := req.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		results []domain.Record
		failed  []int
	)
	for page := 1; page <= maxPages; page++ {
		records, err := p.fetchPage(ctx, base, page, pageSize)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Error("failed to fetch page", "site", req.SiteName, "page", page, "error", err)
			failed = append(failed, page)
			continue
		}
		if len(records) == 0 {
			logger.Info("no more data", "site", req.SiteName, "after_page", page-1)
			break
		}
		logger.Info("fetched page", "site", req.SiteName, "page", page, "records", len(records))
		results = append(results, records...)
	}

	for _, page := range failed {
		logger.Info("retrying failed page", "site", req.SiteName, "page", page)
		records, err := p.fetchPage(ctx, base, page, pageSize)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Error("retry failed", "site", req.SiteName, "page", page, "error", err)
			continue
		}
		results = append(results, records...)
	}

	return results, nil
}

func (p *PPIPScanner) fetchPage(ctx context.Context, base string, page, pageSize int) ([]domain.Record, error) {
	pageURL, err := buildPageURL(base, page, pageSize)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("User-Agent", ppipUserAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request page")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("portal returned %s", resp.Status)
	}

	var body struct {
		Data []domain.Record `json:"data"`
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return nil, errors.Wrap(err, "decode page")
	}
	return body.Data, nil
}

func buildPageURL(base string, page, pageSize int) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", errors.Wrap(err, "parse url")
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("perpage", strconv.Itoa(pageSize))
	q.Set("order", "desc")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
