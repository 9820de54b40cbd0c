package logger

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRedactDSN(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"postgres://proc:hunter2@db:5432/catalog", "postgres://proc:xxxxx@db:5432/catalog"},
		{"postgres://db:5432/catalog", "postgres://db:5432/catalog"},
		{"/data/mission/catalog.sqlite", "/data/mission/catalog.sqlite"},
	}
	for _, tc := range cases {
		if got := redactDSN(tc.in); got != tc.want {
			t.Fatalf("redactDSN(%q): want=%q got=%q", tc.in, tc.want, got)
		}
	}
}

func TestSanitizeKVs(t *testing.T) {
	out := sanitizeKVs([]interface{}{"db_password", "x", "dsn", "postgres://a:b@h/d", "file_id", 7})
	if out[1] != "[REDACTED]" {
		t.Fatalf("password: want=[REDACTED] got=%v", out[1])
	}
	if out[3] != "postgres://a:xxxxx@h/d" {
		t.Fatalf("dsn: got=%v", out[3])
	}
	if out[5] != 7 {
		t.Fatalf("file_id: want=7 got=%v", out[5])
	}
}

func TestNewWritesToLogDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	t.Setenv(LogDirEnv, dir)
	log, err := New("development")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("hello", "file_id", 1)
	log.Sync()
	if _, err := os.Stat(filepath.Join(dir, logFileName)); err != nil {
		t.Fatalf("log file missing: %v", err)
	}
}
