// Package config provides the environment-variable helpers spec.md §4.2's
// policy engine and §4.5's budget manager read live, plus the SQLite pool
// opener shared by every durable component. Grounded on the teacher's
// pkg/config/env.go (bool/value parsing) and pkg/config/dbpool.go (single
// shared *sql.DB).
package config

import (
	"os"
	"strconv"
	"strings"
)

// Bool parses an env var as a boolean the way spec.md's HITL_DEFAULT and
// friends are described: "1", "true", "yes" (case-insensitive) are truthy;
// "0", "false", "no" are falsy; an unset var or any other value yields def.
func Bool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return def
	}
}

// Int parses an env var as an integer, falling back to def on absence or
// parse failure.
func Int(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// Int64 is Int for int64-typed budgets.
func Int64(key string, def int64) int64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return def
	}
	return n
}

// String returns the env var or def if unset.
func String(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

// CSV splits a comma-separated env var into a trimmed, non-empty slice.
// An unset or empty var yields nil.
func CSV(key string) []string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
