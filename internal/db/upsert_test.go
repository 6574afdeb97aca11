package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "audit_reports",
		Columns:      []string{"id", "report"},
		ConflictKeys: []string{"id"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "audit_reports",
		ConflictKeys: []string{"id"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:   "audit_reports",
		Columns: []string{"id", "report"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_audit_reports"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_audit_reports"}, []string{"id", "report"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "audit_reports" .* ON CONFLICT \("id"\) DO UPDATE SET "report" = EXCLUDED."report"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "audit_reports",
		Columns:      []string{"id", "report"},
		ConflictKeys: []string{"id"},
	}, [][]any{{"a", "{}"}, {"b", "{}"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyErrorRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_dedup_fingerprints"}, []string{"fingerprint"}).
		WillReturnError(errors.New("copy failed"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "dedup_fingerprints",
		Columns:      []string{"fingerprint"},
		ConflictKeys: []string{"fingerprint"},
		DoNothing:    true,
	}, [][]any{{"abc"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSQL(t *testing.T) {
	tests := []struct {
		name string
		cfg  UpsertConfig
		want string
	}{
		{
			name: "default update columns",
			cfg:  UpsertConfig{Table: "t", Columns: []string{"id", "a", "b"}, ConflictKeys: []string{"id"}},
			want: `INSERT INTO "t" ("id", "a", "b") SELECT "id", "a", "b" FROM "tmp" ON CONFLICT ("id") DO UPDATE SET "a" = EXCLUDED."a", "b" = EXCLUDED."b"`,
		},
		{
			name: "explicit update columns",
			cfg:  UpsertConfig{Table: "t", Columns: []string{"id", "a", "b"}, ConflictKeys: []string{"id"}, UpdateCols: []string{"b"}},
			want: `INSERT INTO "t" ("id", "a", "b") SELECT "id", "a", "b" FROM "tmp" ON CONFLICT ("id") DO UPDATE SET "b" = EXCLUDED."b"`,
		},
		{
			name: "do nothing",
			cfg:  UpsertConfig{Table: "t", Columns: []string{"id"}, ConflictKeys: []string{"id"}, DoNothing: true},
			want: `INSERT INTO "t" ("id") SELECT "id" FROM "tmp" ON CONFLICT ("id") DO NOTHING`,
		},
		{
			name: "only key columns",
			cfg:  UpsertConfig{Table: "t", Columns: []string{"id"}, ConflictKeys: []string{"id"}},
			want: `INSERT INTO "t" ("id") SELECT "id" FROM "tmp" ON CONFLICT ("id") DO NOTHING`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, upsertSQL(tt.cfg, "tmp"))
		})
	}
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"deal.audit_reports", `"deal"."audit_reports"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := sanitizeTable(tt.input)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	result := quoteAndJoin([]string{"id", "name", "value"})
	assert.Equal(t, `"id", "name", "value"`, result)
}
