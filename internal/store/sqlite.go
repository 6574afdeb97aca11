package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite" // register sqlite driver

	"github.com/sells-group/deal-engine/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite (pure Go).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) a SQLite database at dsn.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection; a single connection also serializes writers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS audit_reports (
	id            TEXT PRIMARY KEY,
	run_id        TEXT,
	candidate_id  TEXT NOT NULL,
	overall_score INTEGER NOT NULL,
	pass          BOOLEAN NOT NULL,
	status        TEXT NOT NULL,
	report        TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS batch_reports (
	run_id     TEXT PRIMARY KEY,
	report     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS rejected_items (
	id               TEXT PRIMARY KEY,
	candidate_id     TEXT NOT NULL,
	report_id        TEXT,
	title            TEXT NOT NULL DEFAULT '',
	source           TEXT NOT NULL DEFAULT '',
	rejection_reason TEXT NOT NULL,
	rejection_agent  TEXT NOT NULL,
	confidence_score INTEGER NOT NULL,
	can_override     BOOLEAN NOT NULL,
	overridden       BOOLEAN NOT NULL DEFAULT 0,
	overridden_by    TEXT,
	overridden_at    DATETIME,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS domain_rules (
	id         TEXT PRIMARY KEY,
	domain     TEXT NOT NULL,
	rule_type  TEXT NOT NULL,
	reason     TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (domain, rule_type)
);

CREATE TABLE IF NOT EXISTS dedup_fingerprints (
	fingerprint TEXT PRIMARY KEY,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS buy_boxes (
	id          TEXT PRIMARY KEY,
	investor_id TEXT NOT NULL,
	is_active   BOOLEAN NOT NULL DEFAULT 1,
	criteria    TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_audit_reports_run_id ON audit_reports(run_id);
CREATE INDEX IF NOT EXISTS idx_audit_reports_candidate ON audit_reports(candidate_id);
CREATE INDEX IF NOT EXISTS idx_rejected_items_overridden ON rejected_items(overridden);
CREATE INDEX IF NOT EXISTS idx_rejected_items_report ON rejected_items(report_id);
CREATE INDEX IF NOT EXISTS idx_buy_boxes_investor ON buy_boxes(investor_id, is_active);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) SaveAuditReport(ctx context.Context, report *model.AuditReport) error {
	return saveReportSQLite(ctx, s.db, report)
}

func saveReportSQLite(ctx context.Context, ex execer, report *model.AuditReport) error {
	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal audit report")
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO audit_reports (id, run_id, candidate_id, overall_score, pass, status, report, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET overall_score = excluded.overall_score, pass = excluded.pass,
		 status = excluded.status, report = excluded.report`,
		report.ID, report.RunID, report.CandidateID, report.OverallScore, report.Pass,
		string(report.Status), string(data), report.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: save audit report")
}

func (s *SQLiteStore) GetAuditReport(ctx context.Context, id string) (*model.AuditReport, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT report FROM audit_reports WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("audit report", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get audit report")
	}
	return decodeReport(data)
}

func (s *SQLiteStore) ListAuditReports(ctx context.Context, filter ReportFilter) ([]model.AuditReport, error) {
	query := `SELECT report FROM audit_reports`
	var conds []string
	var args []any
	if filter.RunID != "" {
		conds = append(conds, "run_id = ?")
		args = append(args, filter.RunID)
	}
	if filter.CandidateID != "" {
		conds = append(conds, "candidate_id = ?")
		args = append(args, filter.CandidateID)
	}
	if filter.Pass != nil {
		conds = append(conds, "pass = ?")
		args = append(args, *filter.Pass)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	query += limitOffset(filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list audit reports")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.AuditReport
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit report")
		}
		r, err := decodeReport(data)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate audit reports")
}

func (s *SQLiteStore) SaveBatchReport(ctx context.Context, batch *model.BatchReport) error {
	if batch.RunID == "" {
		return eris.New("sqlite: batch report has no run id")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin batch tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, e := range batch.Entries {
		if e.Report == nil {
			continue
		}
		if err := saveReportSQLite(ctx, tx, e.Report); err != nil {
			return err
		}
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(batch)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal batch report")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO batch_reports (run_id, report, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET report = excluded.report`,
		batch.RunID, string(data), batch.CreatedAt,
	); err != nil {
		return eris.Wrap(err, "sqlite: save batch report")
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit batch tx")
}

func (s *SQLiteStore) GetBatchReport(ctx context.Context, runID string) (*model.BatchReport, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT report FROM batch_reports WHERE run_id = ?`, runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("batch report", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get batch report")
	}
	var b model.BatchReport
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal batch report")
	}
	return &b, nil
}

const rejectionColumns = `id, candidate_id, report_id, title, source, rejection_reason, rejection_agent,
	confidence_score, can_override, overridden, overridden_by, overridden_at, created_at`

func (s *SQLiteStore) CreateRejection(ctx context.Context, item *model.RejectedItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rejected_items (`+rejectionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.CandidateID, item.ReportID, item.Title, item.Source, item.RejectionReason,
		item.RejectionAgent, item.ConfidenceScore, item.CanOverride, item.Overridden,
		item.OverriddenBy, item.OverriddenAt, item.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: create rejection")
}

func (s *SQLiteStore) GetRejection(ctx context.Context, id string) (*model.RejectedItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+rejectionColumns+` FROM rejected_items WHERE id = ?`, id)
	item, err := scanRejection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("rejection", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get rejection")
	}
	return item, nil
}

func (s *SQLiteStore) ListRejections(ctx context.Context, filter RejectionFilter) ([]model.RejectedItem, error) {
	query := `SELECT ` + rejectionColumns + ` FROM rejected_items`
	var conds []string
	var args []any
	switch filter.Status {
	case model.AuditStatusPendingReview:
		conds = append(conds, "overridden = 0")
	case model.AuditStatusOverridden:
		conds = append(conds, "overridden = 1")
	}
	if filter.Agent != "" {
		conds = append(conds, "rejection_agent = ?")
		args = append(args, filter.Agent)
	}
	if filter.ReportID != "" {
		conds = append(conds, "report_id = ?")
		args = append(args, filter.ReportID)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	query += limitOffset(filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list rejections")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.RejectedItem
	for rows.Next() {
		item, err := scanRejection(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan rejection")
		}
		out = append(out, *item)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate rejections")
}

func (s *SQLiteStore) MarkOverridden(ctx context.Context, id, operator string, at time.Time) (*model.RejectedItem, error) {
	at = at.UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE rejected_items SET overridden = 1, overridden_by = ?, overridden_at = ?
		 WHERE id = ? AND can_override = 1 AND overridden = 0`,
		operator, at, id,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: mark overridden")
	}
	if err := checkRowsAffected(res, "rejection", id); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if _, getErr := s.GetRejection(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, eris.Wrapf(ErrConflict, "rejection %s", id)
	}
	return s.GetRejection(ctx, id)
}

func (s *SQLiteStore) AddDomainRule(ctx context.Context, rule *model.DomainRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO domain_rules (id, domain, rule_type, reason, created_at) VALUES (?, ?, ?, ?, ?)`,
		rule.ID, rule.Domain, string(rule.RuleType), rule.Reason, rule.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: add domain rule")
}

func (s *SQLiteStore) RemoveDomainRule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM domain_rules WHERE id = ?`, id)
	if err != nil {
		return eris.Wrap(err, "sqlite: remove domain rule")
	}
	return checkRowsAffected(res, "domain rule", id)
}

func (s *SQLiteStore) ListDomainRules(ctx context.Context) ([]model.DomainRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, domain, rule_type, reason, created_at FROM domain_rules ORDER BY domain, rule_type`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list domain rules")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.DomainRule
	for rows.Next() {
		var r model.DomainRule
		var reason sql.NullString
		if err := rows.Scan(&r.ID, &r.Domain, &r.RuleType, &reason, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan domain rule")
		}
		r.Reason = reason.String
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate domain rules")
}

func (s *SQLiteStore) InsertFingerprint(ctx context.Context, fp string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO dedup_fingerprints (fingerprint, created_at) VALUES (?, ?) ON CONFLICT(fingerprint) DO NOTHING`,
		fp, time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert fingerprint")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) HasFingerprint(ctx context.Context, fp string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM dedup_fingerprints WHERE fingerprint = ?`, fp).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "sqlite: has fingerprint")
	}
	return true, nil
}

func (s *SQLiteStore) PurgeFingerprints(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dedup_fingerprints`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: purge fingerprints")
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) CountFingerprints(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dedup_fingerprints`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count fingerprints")
}

func (s *SQLiteStore) SaveBuyBox(ctx context.Context, box *model.BuyBoxCriteria) error {
	now := time.Now().UTC()
	if box.ID == "" {
		box.ID = uuid.New().String()
	}
	if box.CreatedAt.IsZero() {
		box.CreatedAt = now
	}
	box.UpdatedAt = now
	data, err := json.Marshal(box)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal buy box")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO buy_boxes (id, investor_id, is_active, criteria, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET investor_id = excluded.investor_id, is_active = excluded.is_active,
		 criteria = excluded.criteria, updated_at = excluded.updated_at`,
		box.ID, box.InvestorID, box.IsActive, string(data), box.CreatedAt, box.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: save buy box")
}

func (s *SQLiteStore) GetBuyBox(ctx context.Context, id string) (*model.BuyBoxCriteria, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT criteria, is_active, updated_at FROM buy_boxes WHERE id = ?`, id)
	box, err := scanBuyBox(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("buy box", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get buy box")
	}
	return box, nil
}

func (s *SQLiteStore) ListActiveBuyBoxes(ctx context.Context, investorID string) ([]model.BuyBoxCriteria, error) {
	query := `SELECT criteria, is_active, updated_at FROM buy_boxes WHERE is_active = 1`
	var args []any
	if investorID != "" {
		query += " AND investor_id = ?"
		args = append(args, investorID)
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list buy boxes")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.BuyBoxCriteria
	for rows.Next() {
		box, err := scanBuyBox(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan buy box")
		}
		out = append(out, *box)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate buy boxes")
}

func (s *SQLiteStore) DeactivateBuyBox(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE buy_boxes SET is_active = 0, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrap(err, "sqlite: deactivate buy box")
	}
	return checkRowsAffected(res, "buy box", id)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return notFound(entity, id)
	}
	return nil
}

func limitOffset(limit, offset int) string {
	var b strings.Builder
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	} else if offset > 0 {
		b.WriteString(" LIMIT -1")
	}
	if offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", offset)
	}
	return b.String()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRejection(row scannable) (*model.RejectedItem, error) {
	var item model.RejectedItem
	var reportID, overriddenBy sql.NullString
	var overriddenAt sql.NullTime
	err := row.Scan(
		&item.ID, &item.CandidateID, &reportID, &item.Title, &item.Source, &item.RejectionReason,
		&item.RejectionAgent, &item.ConfidenceScore, &item.CanOverride, &item.Overridden,
		&overriddenBy, &overriddenAt, &item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	item.ReportID = reportID.String
	item.OverriddenBy = overriddenBy.String
	if overriddenAt.Valid {
		t := overriddenAt.Time.UTC()
		item.OverriddenAt = &t
	}
	return &item, nil
}

func scanBuyBox(row scannable) (*model.BuyBoxCriteria, error) {
	var data string
	var active bool
	var updated time.Time
	if err := row.Scan(&data, &active, &updated); err != nil {
		return nil, err
	}
	var box model.BuyBoxCriteria
	if err := json.Unmarshal([]byte(data), &box); err != nil {
		return nil, eris.Wrap(err, "unmarshal buy box")
	}
	box.IsActive = active
	box.UpdatedAt = updated
	return &box, nil
}

func decodeReport(data string) (*model.AuditReport, error) {
	var r model.AuditReport
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, eris.Wrap(err, "unmarshal audit report")
	}
	return &r, nil
}
