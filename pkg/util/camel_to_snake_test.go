package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCamelToSnakeCase(t *testing.T) {
	tests := map[string]string{
		"Id":          "id",
		"Type":        "type",
		"ArchivePath": "archive_path",
		"DbDumpPath":  "db_dump_path",
		"StartedAt":   "started_at",
		"RunID":       "run_id",
		"HTTPServer":  "http_server",
		"Files2Go":    "files2_go",
	}

	for in, expected := range tests {
		assert.Equal(t, expected, CamelToSnakeCase(in), in)
	}
}
