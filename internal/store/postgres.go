package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/deal-engine/internal/db"
	"github.com/sells-group/deal-engine/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_fingerprint": `INSERT INTO dedup_fingerprints (fingerprint, created_at) VALUES ($1, $2) ON CONFLICT (fingerprint) DO NOTHING`,
	"has_fingerprint":    `SELECT 1 FROM dedup_fingerprints WHERE fingerprint = $1`,
	"get_rejection":      `SELECT ` + rejectionColumns + ` FROM rejected_items WHERE id = $1`,
	"get_audit_report":   `SELECT report FROM audit_reports WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS audit_reports (
	id            TEXT PRIMARY KEY,
	run_id        TEXT NOT NULL DEFAULT '',
	candidate_id  TEXT NOT NULL,
	overall_score INTEGER NOT NULL,
	pass          BOOLEAN NOT NULL,
	status        TEXT NOT NULL,
	report        JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS batch_reports (
	run_id     TEXT PRIMARY KEY,
	report     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS rejected_items (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	candidate_id     TEXT NOT NULL,
	report_id        TEXT NOT NULL DEFAULT '',
	title            TEXT NOT NULL DEFAULT '',
	source           TEXT NOT NULL DEFAULT '',
	rejection_reason TEXT NOT NULL,
	rejection_agent  TEXT NOT NULL,
	confidence_score INTEGER NOT NULL,
	can_override     BOOLEAN NOT NULL,
	overridden       BOOLEAN NOT NULL DEFAULT false,
	overridden_by    TEXT NOT NULL DEFAULT '',
	overridden_at    TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS domain_rules (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	domain     TEXT NOT NULL,
	rule_type  TEXT NOT NULL CHECK (rule_type IN ('whitelist', 'blacklist')),
	reason     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (domain, rule_type)
);

CREATE TABLE IF NOT EXISTS dedup_fingerprints (
	fingerprint TEXT PRIMARY KEY,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS buy_boxes (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	investor_id TEXT NOT NULL,
	is_active   BOOLEAN NOT NULL DEFAULT true,
	criteria    JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_audit_reports_run_id ON audit_reports(run_id);
CREATE INDEX IF NOT EXISTS idx_audit_reports_candidate ON audit_reports(candidate_id);
CREATE INDEX IF NOT EXISTS idx_rejected_items_pending ON rejected_items(created_at DESC) WHERE NOT overridden;
CREATE INDEX IF NOT EXISTS idx_rejected_items_report ON rejected_items(report_id) WHERE report_id <> '';
CREATE INDEX IF NOT EXISTS idx_buy_boxes_investor ON buy_boxes(investor_id) WHERE is_active;
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var reportColumns = []string{"id", "run_id", "candidate_id", "overall_score", "pass", "status", "report", "created_at"}

func reportRow(report *model.AuditReport) ([]any, error) {
	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(report)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal audit report")
	}
	return []any{
		report.ID, report.RunID, report.CandidateID, report.OverallScore, report.Pass,
		string(report.Status), data, report.CreatedAt,
	}, nil
}

func (s *PostgresStore) SaveAuditReport(ctx context.Context, report *model.AuditReport) error {
	row, err := reportRow(report)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO audit_reports (id, run_id, candidate_id, overall_score, pass, status, report, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET overall_score = EXCLUDED.overall_score, pass = EXCLUDED.pass,
		 status = EXCLUDED.status, report = EXCLUDED.report`,
		row...,
	)
	return eris.Wrap(err, "postgres: save audit report")
}

func (s *PostgresStore) GetAuditReport(ctx context.Context, id string) (*model.AuditReport, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT report FROM audit_reports WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("audit report", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get audit report")
	}
	return decodeReport(string(data))
}

func (s *PostgresStore) ListAuditReports(ctx context.Context, filter ReportFilter) ([]model.AuditReport, error) {
	query := `SELECT report FROM audit_reports`
	var conds []string
	var args []any
	if filter.RunID != "" {
		args = append(args, filter.RunID)
		conds = append(conds, fmt.Sprintf("run_id = $%d", len(args)))
	}
	if filter.CandidateID != "" {
		args = append(args, filter.CandidateID)
		conds = append(conds, fmt.Sprintf("candidate_id = $%d", len(args)))
	}
	if filter.Pass != nil {
		args = append(args, *filter.Pass)
		conds = append(conds, fmt.Sprintf("pass = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	query, args = pgLimitOffset(query, args, filter.Limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list audit reports")
	}
	defer rows.Close()

	var out []model.AuditReport
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan audit report")
		}
		r, err := decodeReport(string(data))
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate audit reports")
}

// SaveBatchReport bulk-upserts the batch's reports through a COPY-staged
// temp table, then writes the aggregate row.
func (s *PostgresStore) SaveBatchReport(ctx context.Context, batch *model.BatchReport) error {
	if batch.RunID == "" {
		return eris.New("postgres: batch report has no run id")
	}
	var rows [][]any
	for _, e := range batch.Entries {
		if e.Report == nil {
			continue
		}
		row, err := reportRow(e.Report)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	if _, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "audit_reports",
		Columns:      reportColumns,
		ConflictKeys: []string{"id"},
		UpdateCols:   []string{"overall_score", "pass", "status", "report"},
	}, rows); err != nil {
		return eris.Wrap(err, "postgres: save batch reports")
	}

	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(batch)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal batch report")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO batch_reports (run_id, report, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (run_id) DO UPDATE SET report = EXCLUDED.report`,
		batch.RunID, data, batch.CreatedAt,
	)
	return eris.Wrap(err, "postgres: save batch report")
}

func (s *PostgresStore) GetBatchReport(ctx context.Context, runID string) (*model.BatchReport, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT report FROM batch_reports WHERE run_id = $1`, runID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("batch report", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get batch report")
	}
	var b model.BatchReport
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal batch report")
	}
	return &b, nil
}

func (s *PostgresStore) CreateRejection(ctx context.Context, item *model.RejectedItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO rejected_items (`+rejectionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		item.ID, item.CandidateID, item.ReportID, item.Title, item.Source, item.RejectionReason,
		item.RejectionAgent, item.ConfidenceScore, item.CanOverride, item.Overridden,
		item.OverriddenBy, item.OverriddenAt, item.CreatedAt,
	)
	return eris.Wrap(err, "postgres: create rejection")
}

func (s *PostgresStore) GetRejection(ctx context.Context, id string) (*model.RejectedItem, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+rejectionColumns+` FROM rejected_items WHERE id = $1`, id)
	item, err := scanPgRejection(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("rejection", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get rejection")
	}
	return item, nil
}

func (s *PostgresStore) ListRejections(ctx context.Context, filter RejectionFilter) ([]model.RejectedItem, error) {
	query := `SELECT ` + rejectionColumns + ` FROM rejected_items`
	var conds []string
	var args []any
	switch filter.Status {
	case model.AuditStatusPendingReview:
		conds = append(conds, "NOT overridden")
	case model.AuditStatusOverridden:
		conds = append(conds, "overridden")
	}
	if filter.Agent != "" {
		args = append(args, filter.Agent)
		conds = append(conds, fmt.Sprintf("rejection_agent = $%d", len(args)))
	}
	if filter.ReportID != "" {
		args = append(args, filter.ReportID)
		conds = append(conds, fmt.Sprintf("report_id = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	query, args = pgLimitOffset(query, args, filter.Limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list rejections")
	}
	defer rows.Close()

	var out []model.RejectedItem
	for rows.Next() {
		item, err := scanPgRejection(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan rejection")
		}
		out = append(out, *item)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate rejections")
}

func (s *PostgresStore) MarkOverridden(ctx context.Context, id, operator string, at time.Time) (*model.RejectedItem, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE rejected_items SET overridden = true, overridden_by = $1, overridden_at = $2
		 WHERE id = $3 AND can_override AND NOT overridden
		 RETURNING `+rejectionColumns,
		operator, at.UTC(), id,
	)
	item, err := scanPgRejection(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.GetRejection(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, eris.Wrapf(ErrConflict, "rejection %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: mark overridden")
	}
	return item, nil
}

func (s *PostgresStore) AddDomainRule(ctx context.Context, rule *model.DomainRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO domain_rules (id, domain, rule_type, reason, created_at) VALUES ($1, $2, $3, $4, $5)`,
		rule.ID, rule.Domain, string(rule.RuleType), rule.Reason, rule.CreatedAt,
	)
	return eris.Wrap(err, "postgres: add domain rule")
}

func (s *PostgresStore) RemoveDomainRule(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM domain_rules WHERE id = $1`, id)
	if err != nil {
		return eris.Wrap(err, "postgres: remove domain rule")
	}
	if tag.RowsAffected() == 0 {
		return notFound("domain rule", id)
	}
	return nil
}

func (s *PostgresStore) ListDomainRules(ctx context.Context) ([]model.DomainRule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, domain, rule_type, reason, created_at FROM domain_rules ORDER BY domain, rule_type`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list domain rules")
	}
	defer rows.Close()

	var out []model.DomainRule
	for rows.Next() {
		var r model.DomainRule
		var ruleType string
		if err := rows.Scan(&r.ID, &r.Domain, &ruleType, &r.Reason, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan domain rule")
		}
		r.RuleType = model.RuleType(ruleType)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate domain rules")
}

func (s *PostgresStore) InsertFingerprint(ctx context.Context, fp string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO dedup_fingerprints (fingerprint, created_at) VALUES ($1, $2) ON CONFLICT (fingerprint) DO NOTHING`,
		fp, time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: insert fingerprint")
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) HasFingerprint(ctx context.Context, fp string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM dedup_fingerprints WHERE fingerprint = $1`, fp).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "postgres: has fingerprint")
	}
	return true, nil
}

func (s *PostgresStore) PurgeFingerprints(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM dedup_fingerprints`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: purge fingerprints")
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) CountFingerprints(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dedup_fingerprints`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count fingerprints")
}

func (s *PostgresStore) SaveBuyBox(ctx context.Context, box *model.BuyBoxCriteria) error {
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
		return eris.Wrap(err, "postgres: marshal buy box")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO buy_boxes (id, investor_id, is_active, criteria, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET investor_id = EXCLUDED.investor_id, is_active = EXCLUDED.is_active,
		 criteria = EXCLUDED.criteria, updated_at = EXCLUDED.updated_at`,
		box.ID, box.InvestorID, box.IsActive, data, box.CreatedAt, box.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: save buy box")
}

func (s *PostgresStore) GetBuyBox(ctx context.Context, id string) (*model.BuyBoxCriteria, error) {
	row := s.pool.QueryRow(ctx, `SELECT criteria, is_active, updated_at FROM buy_boxes WHERE id = $1`, id)
	box, err := scanPgBuyBox(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("buy box", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get buy box")
	}
	return box, nil
}

func (s *PostgresStore) ListActiveBuyBoxes(ctx context.Context, investorID string) ([]model.BuyBoxCriteria, error) {
	query := `SELECT criteria, is_active, updated_at FROM buy_boxes WHERE is_active`
	var args []any
	if investorID != "" {
		args = append(args, investorID)
		query += " AND investor_id = $1"
	}
	query += " ORDER BY created_at, id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list buy boxes")
	}
	defer rows.Close()

	var out []model.BuyBoxCriteria
	for rows.Next() {
		box, err := scanPgBuyBox(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan buy box")
		}
		out = append(out, *box)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate buy boxes")
}

func (s *PostgresStore) DeactivateBuyBox(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE buy_boxes SET is_active = false, updated_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrap(err, "postgres: deactivate buy box")
	}
	if tag.RowsAffected() == 0 {
		return notFound("buy box", id)
	}
	return nil
}

func pgLimitOffset(query string, args []any, limit, offset int) (string, []any) {
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

func scanPgRejection(row scannable) (*model.RejectedItem, error) {
	var item model.RejectedItem
	var overriddenAt *time.Time
	err := row.Scan(
		&item.ID, &item.CandidateID, &item.ReportID, &item.Title, &item.Source, &item.RejectionReason,
		&item.RejectionAgent, &item.ConfidenceScore, &item.CanOverride, &item.Overridden,
		&item.OverriddenBy, &overriddenAt, &item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if overriddenAt != nil {
		t := overriddenAt.UTC()
		item.OverriddenAt = &t
	}
	return &item, nil
}

func scanPgBuyBox(row scannable) (*model.BuyBoxCriteria, error) {
	var data []byte
	var active bool
	var updated time.Time
	if err := row.Scan(&data, &active, &updated); err != nil {
		return nil, err
	}
	var box model.BuyBoxCriteria
	if err := json.Unmarshal(data, &box); err != nil {
		return nil, eris.Wrap(err, "unmarshal buy box")
	}
	box.IsActive = active
	box.UpdatedAt = updated
	return &box, nil
}
