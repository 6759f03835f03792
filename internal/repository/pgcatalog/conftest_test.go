package pgcatalog

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	conn := sqlx.NewDb(raw, "sqlmock")
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		_ = conn.Close()
	})
	return conn, mock
}

var candidateColumns = []string{
	"id", "name", "price", "category", "available_qty", "lead_time", "geohash", "location", "similarity",
}
