package database

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationSourcePairsUpAndDown(t *testing.T) {
	src, err := MigrationSource()
	require.NoError(t, err)
	defer src.Close() //nolint:errcheck

	version, err := src.First()
	require.NoError(t, err)
	for {
		up, _, err := src.ReadUp(version)
		require.NoError(t, err, "up migration %d", version)
		body, err := io.ReadAll(up)
		require.NoError(t, err)
		_ = up.Close()
		assert.NotEmpty(t, strings.TrimSpace(string(body)))

		down, _, err := src.ReadDown(version)
		require.NoError(t, err, "down migration %d", version)
		_ = down.Close()

		next, err := src.Next(version)
		if err != nil {
			break
		}
		version = next
	}
}

func TestMigrationsCreateRepositoryTables(t *testing.T) {
	src, err := MigrationSource()
	require.NoError(t, err)
	defer src.Close() //nolint:errcheck

	up, _, err := src.ReadUp(1)
	require.NoError(t, err)
	defer up.Close() //nolint:errcheck
	body, err := io.ReadAll(up)
	require.NoError(t, err)

	for _, table := range []string{"assessment_results", "grading_schemas", "grading_schema_categories", "grading_policies", "report_jobs", "terms", "subjects", "enrollments", "daily_attendance"} {
		assert.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS "+table+" ")
	}
}

func TestMigrationsScopeReferenceTablesByTenant(t *testing.T) {
	src, err := MigrationSource()
	require.NoError(t, err)
	defer src.Close() //nolint:errcheck

	up, _, err := src.ReadUp(1)
	require.NoError(t, err)
	defer up.Close() //nolint:errcheck
	body, err := io.ReadAll(up)
	require.NoError(t, err)

	statements := strings.Split(string(body), "CREATE TABLE IF NOT EXISTS ")
	for _, table := range []string{"terms", "subjects", "students", "classes", "enrollments", "daily_attendance", "assessment_results"} {
		var found bool
		for _, stmt := range statements {
			if strings.HasPrefix(stmt, table+" (") {
				found = true
				assert.Contains(t, stmt, "tenant_id", "table %s", table)
			}
		}
		assert.True(t, found, "table %s", table)
	}
}
