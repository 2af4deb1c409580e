package util

import (
	"regexp"
	"strings"
)

var (
	wordStartRegex = regexp.MustCompile("(.)([A-Z][a-z]+)")
	acronymRegex   = regexp.MustCompile("([a-z0-9])([A-Z])")
)

// CamelToSnakeCase maps Go field names to column names: DbDumpPath becomes
// db_dump_path and RunID becomes run_id.
func CamelToSnakeCase(str string) string {
	snake := wordStartRegex.ReplaceAllString(str, "${1}_${2}")
	snake = acronymRegex.ReplaceAllString(snake, "${1}_${2}")

	return strings.ToLower(snake)
}
