package repository

import (
	"regexp"
	"strings"
	"testing"
)

// The column lists the repositories build their SQL from must stay in sync
// with the DDL Migrate applies, or every statement against a freshly
// migrated database fails with an undefined-column error.
func TestSchemaDeclaresRepositoryColumns(t *testing.T) {
	tests := []struct {
		name    string
		table   string
		columns string
	}{
		{"processing jobs", "caseindex.processing_jobs", jobColumns},
		{"document chunks", "caseindex.document_chunks", chunkColumns},
		{"batch sessions", "caseindex.batch_sessions", sessionColumns},
		{"batch document statuses", "caseindex.batch_document_statuses", documentStatusColumns},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ddl := createTableStatement(t, tt.table)
			for _, column := range strings.Split(tt.columns, ",") {
				column = strings.TrimSpace(column)
				if column == "" {
					continue
				}
				pattern := regexp.MustCompile(`\b` + regexp.QuoteMeta(column) + `\b`)
				if !pattern.MatchString(ddl) {
					t.Errorf("repository SQL references column %q but %s DDL does not declare it", column, tt.table)
				}
			}
		})
	}
}

func createTableStatement(t *testing.T, table string) string {
	t.Helper()
	for _, stmt := range schemaStatements {
		if strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS "+table+" ") {
			return stmt
		}
	}
	t.Fatalf("no CREATE TABLE statement for %s", table)
	return ""
}
