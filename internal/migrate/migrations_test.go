package migrate

import (
	"io/fs"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsAreWellFormed(t *testing.T) {
	entries, err := fs.ReadDir(embedded, migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries, "no embedded migrations")

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.True(t, sort.StringsAreSorted(names), "migration filenames must order by version")

	for _, name := range names {
		data, err := fs.ReadFile(embedded, migrationsDir+"/"+name)
		require.NoError(t, err)
		content := string(data)
		assert.Contains(t, content, "-- +goose Up", "%s missing up section", name)
		assert.Contains(t, content, "-- +goose Down", "%s missing down section", name)
	}
}

func TestImagesMigrationKeepsTriStateOutcome(t *testing.T) {
	content := readMigration(t, "create_generated_images")

	// A NOT NULL success column would collapse pending and failed into one
	// state, so guard the schema here.
	assert.Contains(t, content, "success BOOLEAN,")
	assert.NotContains(t, content, "success BOOLEAN NOT NULL")
	assert.Contains(t, content, "FOREIGN KEY (job_id) REFERENCES generation_jobs(id) ON DELETE CASCADE")
}

func TestJobsMigrationConstraints(t *testing.T) {
	content := readMigration(t, "create_generation_jobs")

	checks := []string{
		"CHECK (tier IN ('free', 'premium'))",
		"CHECK (status IN ('pending', 'processing', 'completed', 'failed', 'cancelled'))",
		"FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE",
		"WHERE status = 'pending'",
	}
	for _, sub := range checks {
		assert.Contains(t, content, sub)
	}
}

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	entries, err := fs.ReadDir(embedded, migrationsDir)
	require.NoError(t, err)
	for _, e := range entries {
		if strings.Contains(e.Name(), suffix) {
			data, err := fs.ReadFile(embedded, migrationsDir+"/"+e.Name())
			require.NoError(t, err)
			return string(data)
		}
	}
	t.Fatalf("no migration matching %q", suffix)
	return ""
}
