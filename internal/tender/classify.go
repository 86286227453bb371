// Package tender resolves identity, category, entity and status from raw
// portal records. Every extractor walks an explicit fallback chain so that
// records from older portal schemas still classify.
package tender

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"TenderWatch/internal/domain"
)

const unknown = "Unknown"

// closeLayouts are tried in order. Zoned ISO-8601 first, naive layouts are
// interpreted in the reference time's location.
var closeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ID returns the stable dedup key of a record or "" when it has none.
func ID(r domain.Record) string {
	id, _ := scalar(r["id"])
	return strings.TrimSpace(id)
}

// Category resolves the procurement category:
// nested object title, then legacy flat fields, then an id placeholder.
func Category(r domain.Record) string {
	if title := nestedField(r["procurement_category"], "title"); title != "" {
		return title
	}
	for _, key := range []string{"category_name", "category"} {
		if v := flatOrNested(r[key], "title"); v != "" {
			return v
		}
	}
	if id, ok := scalar(r["procurement_category_id"]); ok && id != "" {
		return "Category #" + id
	}
	return unknown
}

// Entity resolves the sponsoring procuring entity with the same chain as Category.
func Entity(r domain.Record) string {
	if name := nestedField(r["pe"], "name"); name != "" {
		return name
	}
	if v := flatOrNested(r["entity"], "name"); v != "" {
		return v
	}
	if id, ok := scalar(r["pe_id"]); ok && id != "" {
		return "Entity #" + id
	}
	return unknown
}

// Title returns the record title as plain text. Upstream titles sometimes
// carry markup or entities.
func Title(r domain.Record) string {
	raw, _ := scalar(r["title"])
	if raw == "" {
		return "No title"
	}
	if strings.ContainsAny(raw, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw)); err == nil {
			raw = doc.Text()
		}
	}
	return strings.Join(strings.Fields(raw), " ")
}

// Field returns a scalar field as a string, or "" when absent.
func Field(r domain.Record, key string) string {
	v, _ := scalar(r[key])
	return v
}

// CloseAt returns the raw closing date string.
func CloseAt(r domain.Record) string {
	return Field(r, "close_at")
}

// CloseTime parses close_at. ok is false when it is absent or unparsable.
func CloseTime(r domain.Record, loc *time.Location) (time.Time, bool) {
	raw := strings.TrimSpace(CloseAt(r))
	if raw == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range closeLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// IsActive reports whether the tender is still open at ref. A missing or
// unparsable closing date counts as active.
func IsActive(r domain.Record, ref time.Time) bool {
	closeAt, ok := CloseTime(r, ref.Location())
	if !ok {
		return true
	}
	return !closeAt.Before(ref)
}

// MatchesFilter reports whether any allowed class is a case-insensitive
// substring of the record's category. No classes means everything matches.
func MatchesFilter(r domain.Record, classes []string) bool {
	if len(classes) == 0 {
		return true
	}
	category := strings.ToLower(Category(r))
	for _, class := range classes {
		if strings.Contains(category, strings.ToLower(class)) {
			return true
		}
	}
	return false
}

func nestedField(v any, key string) string {
	obj, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	s, _ := scalar(obj[key])
	return strings.TrimSpace(s)
}

func flatOrNested(v any, key string) string {
	if nested := nestedField(v, key); nested != "" {
		return nested
	}
	s, _ := scalar(v)
	return strings.TrimSpace(s)
}

func scalar(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case fmt.Stringer:
		return val.String(), true
	default:
		return "", false
	}
}
