package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/smallbiznis/fieldops/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "gorm translated", err: fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), want: true},
		{name: "postgres unique", err: fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), want: true},
		{name: "postgres other", err: &pgconn.PgError{Code: "23503"}, want: false},
		{name: "mysql", err: errors.New("Error 1062: Duplicate entry"), want: true},
		{name: "sqlite", err: errors.New("UNIQUE constraint failed: work_orders.number"), want: true},
		{name: "other", err: errors.New("connection refused"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsDuplicateKeyErr(tc.err))
		})
	}
}

func TestDialect(t *testing.T) {
	cfg := FromAppConfig(config.Config{
		DBType:            "sqlite",
		DBName:            "fieldops_test",
		DBConnMaxLifetime: 300,
	})
	assert.Equal(t, "sqlite", cfg.Type)
	assert.Equal(t, "5m0s", cfg.ConnMaxLifetime.String())

	dialector, err := Dialect(cfg)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", dialector.Name())

	_, err = Dialect(Config{Type: "oracle"})
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(Config{Host: "db", User: "app", Password: "secret", Name: "fieldops", Port: "5432", SSLMode: "disable"})
	assert.Equal(t, "host=db user=app password=secret dbname=fieldops port=5432 sslmode=disable TimeZone=UTC", dsn)
}
