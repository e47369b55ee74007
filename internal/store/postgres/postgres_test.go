package postgres

import (
	"reflect"
	"testing"
	"time"

	"github.com/imperfectform/predictbot/internal/domain"
)

func TestDSN(t *testing.T) {
	got := DSN(ClientConfig{Host: "db", User: "bot", Password: "pw", Database: "predict"})
	if got != "postgres://bot:pw@db:5432/predict?sslmode=disable" {
		t.Errorf("DSN = %q", got)
	}
	if got := DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}); got != "postgres://x" {
		t.Errorf("explicit DSN not preferred: %q", got)
	}
}

func TestMigrationFilesOrdered(t *testing.T) {
	names, err := migrationFiles(migrationsFS)
	if err != nil {
		t.Fatalf("migrationFiles: %v", err)
	}
	want := []string{"001_audit_log.sql", "002_predictions.sql", "003_workouts.sql", "004_challenge_attempts.sql"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("migrations = %v, want %v", names, want)
	}
}

func TestSelectBuilder(t *testing.T) {
	since := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		build     func() (string, []any)
		wantQuery string
		wantArgs  int
	}{
		{
			name: "no filters",
			build: func() (string, []any) {
				return newSelect("SELECT id FROM audit_log").build("created_at", "id DESC", domain.ListOpts{})
			},
			wantQuery: "SELECT id FROM audit_log ORDER BY id DESC",
		},
		{
			name: "filters and paging",
			build: func() (string, []any) {
				return newSelect("SELECT id FROM predictions").
					whereArg("chain = ?", "base").
					whereArg("status = ?", "ACTIVE").
					build("target_date", "target_date ASC", domain.ListOpts{Since: &since, Limit: 10, Offset: 20})
			},
			wantQuery: "SELECT id FROM predictions WHERE chain = $1 AND status = $2 AND target_date >= $3 ORDER BY target_date ASC LIMIT $4 OFFSET $5",
			wantArgs:  5,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q, args := tc.build()
			if q != tc.wantQuery {
				t.Errorf("query = %q\nwant    %q", q, tc.wantQuery)
			}
			if len(args) != tc.wantArgs {
				t.Errorf("args = %d, want %d", len(args), tc.wantArgs)
			}
		})
	}
}
