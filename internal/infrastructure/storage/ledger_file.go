package storage

import (
	"context"
	"os"

	"github.com/cockroachdb/errors"

	"TenderWatch/internal/ledger"
)

// FileLedger persists the delivery ledger as a single JSON document.
type FileLedger struct {
	path string
}

var _ ledger.Backend = (*FileLedger)(nil)

// NewFileLedger stores the ledger at path.
func NewFileLedger(path string) *FileLedger {
	return &FileLedger{path: path}
}

// Load decodes the ledger. A missing file yields an empty ledger.
func (f *FileLedger) Load(_ context.Context) (ledger.Data, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return ledger.Data{Recipients: map[string]ledger.Entry{}}, nil
	}
	if err != nil {
		return ledger.Data{}, errors.Wrapf(err, "read %s", f.path)
	}

	var data ledger.Data
	if err := decodeJSON(raw, &data); err != nil {
		return ledger.Data{}, errors.Mark(errors.Wrapf(err, "decode %s", f.path), ledger.ErrCorrupt)
	}
	if data.Recipients == nil {
		data.Recipients = map[string]ledger.Entry{}
	}
	return data, nil
}

// Store replaces the ledger file atomically.
func (f *FileLedger) Store(_ context.Context, data ledger.Data) error {
	if data.Recipients == nil {
		data.Recipients = map[string]ledger.Entry{}
	}
	return writeJSON(f.path, data)
}
