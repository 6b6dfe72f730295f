package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestClassifyPgError(t *testing.T) {
	tests := []struct {
		code      string
		transient bool
	}{
		{"08006", true},
		{"08001", true},
		{"40001", true},
		{"40P01", true},
		{"53300", true},
		{"57P01", true},
		{"23505", false},
		{"22P02", false},
		{"42P01", false},
	}

	for _, tt := range tests {
		err := fmt.Errorf("query: %w", &pgconn.PgError{Code: tt.code})
		assert.Equal(t, tt.transient, IsTransient(classifyPgError(err)), tt.code)
	}

	assert.Nil(t, classifyPgError(nil))
	assert.False(t, IsTransient(classifyPgError(errors.New("plain"))))
}

func TestClassifySQLiteError(t *testing.T) {
	assert.Nil(t, classifySQLiteError(nil))
	assert.False(t, IsTransient(classifySQLiteError(errors.New("plain"))))
}
