package storage

import (
	"context"
	"database/sql"
	"sort"

	sq "github.com/Masterminds/squirrel"
	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"

	"TenderWatch/internal/ledger"
)

const sentBatchSize = 400

var ledgerSchema = []string{
	`CREATE TABLE IF NOT EXISTS ledger_recipients (
		email      TEXT PRIMARY KEY,
		first_seen TEXT NOT NULL,
		last_sent  TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_sent (
		email     TEXT NOT NULL,
		tender_id TEXT NOT NULL,
		PRIMARY KEY (email, tender_id)
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// SQLLedger persists the delivery ledger in relational tables.
type SQLLedger struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var _ ledger.Backend = (*SQLLedger)(nil)

// OpenSQLLedger opens a sqlite database at dsn and prepares the schema.
func OpenSQLLedger(ctx context.Context, dsn string) (*SQLLedger, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open ledger database")
	}
	db.SetMaxOpenConns(1)

	l := NewSQLLedger(db)
	if err := l.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// NewSQLLedger wires a sql.DB implementation.
func NewSQLLedger(db *sql.DB) *SQLLedger {
	return &SQLLedger{db: db, sb: sq.StatementBuilder.PlaceholderFormat(sq.Question)}
}

// Migrate creates the ledger tables when missing.
func (l *SQLLedger) Migrate(ctx context.Context) error {
	for _, stmt := range ledgerSchema {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "migrate ledger schema")
		}
	}
	return nil
}

// Close releases the database handle.
func (l *SQLLedger) Close() error {
	return l.db.Close()
}

// Load reads every recipient together with their sent identities.
func (l *SQLLedger) Load(ctx context.Context) (ledger.Data, error) {
	data := ledger.Data{Recipients: map[string]ledger.Entry{}}

	query, args, err := l.sb.Select("email", "first_seen", "last_sent").From("ledger_recipients").ToSql()
	if err != nil {
		return data, errors.Wrap(err, "build recipients query")
	}
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return data, errors.Wrap(err, "query recipients")
	}
	for rows.Next() {
		var email string
		var entry ledger.Entry
		if err := rows.Scan(&email, &entry.FirstSeen, &entry.LastSent); err != nil {
			_ = rows.Close()
			return data, errors.Wrap(err, "scan recipient")
		}
		entry.SentTenders = []string{}
		data.Recipients[email] = entry
	}
	if err := closeRows(rows); err != nil {
		return data, err
	}

	query, args, err = l.sb.Select("email", "tender_id").From("ledger_sent").OrderBy("email", "tender_id").ToSql()
	if err != nil {
		return data, errors.Wrap(err, "build sent query")
	}
	rows, err = l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return data, errors.Wrap(err, "query sent tenders")
	}
	for rows.Next() {
		var email, id string
		if err := rows.Scan(&email, &id); err != nil {
			_ = rows.Close()
			return data, errors.Wrap(err, "scan sent tender")
		}
		entry, ok := data.Recipients[email]
		if !ok {
			continue
		}
		entry.SentTenders = append(entry.SentTenders, id)
		data.Recipients[email] = entry
	}
	if err := closeRows(rows); err != nil {
		return data, err
	}

	query, args, err = l.sb.Select("value").From("ledger_meta").Where(sq.Eq{"key": "last_updated"}).ToSql()
	if err != nil {
		return data, errors.Wrap(err, "build meta query")
	}
	var updated string
	switch err := l.db.QueryRowContext(ctx, query, args...).Scan(&updated); {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return data, errors.Wrap(err, "query last_updated")
	default:
		data.LastUpdated = &updated
	}

	return data, nil
}

// Store replaces the persisted ledger with data inside one transaction.
// Sent identities are only ever inserted; recipients missing from data are
// removed with their rows.
func (l *SQLLedger) Store(ctx context.Context, data ledger.Data) (err error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin ledger tx")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	emails := make([]string, 0, len(data.Recipients))
	for email := range data.Recipients {
		emails = append(emails, email)
	}
	sort.Strings(emails)

	for _, table := range []string{"ledger_sent", "ledger_recipients"} {
		if err = l.exec(ctx, tx, l.sb.Delete(table).Where(sq.NotEq{"email": emails})); err != nil {
			return errors.Wrapf(err, "prune %s", table)
		}
	}

	for _, email := range emails {
		entry := data.Recipients[email]
		upsert := l.sb.Insert("ledger_recipients").
			Columns("email", "first_seen", "last_sent").
			Values(email, entry.FirstSeen, entry.LastSent).
			Suffix("ON CONFLICT(email) DO UPDATE SET first_seen = excluded.first_seen, last_sent = excluded.last_sent")
		if err = l.exec(ctx, tx, upsert); err != nil {
			return errors.Wrapf(err, "upsert recipient %s", email)
		}

		for start := 0; start < len(entry.SentTenders); start += sentBatchSize {
			end := min(start+sentBatchSize, len(entry.SentTenders))
			insert := l.sb.Insert("ledger_sent").Options("OR IGNORE").Columns("email", "tender_id")
			for _, id := range entry.SentTenders[start:end] {
				insert = insert.Values(email, id)
			}
			if err = l.exec(ctx, tx, insert); err != nil {
				return errors.Wrapf(err, "insert sent tenders for %s", email)
			}
		}
	}

	if data.LastUpdated != nil {
		meta := l.sb.Insert("ledger_meta").Options("OR REPLACE").
			Columns("key", "value").
			Values("last_updated", *data.LastUpdated)
		if err = l.exec(ctx, tx, meta); err != nil {
			return errors.Wrap(err, "store last_updated")
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit ledger tx")
	}
	return nil
}

func (l *SQLLedger) exec(ctx context.Context, tx *sql.Tx, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return errors.Wrap(err, "build statement")
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return errors.Wrap(err, "rows iteration")
	}
	return errors.Wrap(rows.Close(), "close rows")
}
