package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-gradebook-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5433, User: "grader", Password: "pw", Name: "gradebook", SSLMode: "require"})
	assert.Equal(t, "host=db port=5433 user=grader password=pw dbname=gradebook sslmode=require", dsn)
}
