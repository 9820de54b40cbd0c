package diskfile

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"

	"github.com/yungbote/dbprocessing/internal/pkg/version"
	"github.com/yungbote/dbprocessing/internal/platform/logger"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestOpenAndChecksum(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "testDB_000_000.raw")
	writeFile(t, path, "hello\n")

	d, err := Open(path, logger.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !d.Writable || d.Params.Filename != "testDB_000_000.raw" || !d.Params.ExistsOnDisk {
		t.Fatalf("Open: unexpected state %+v", d)
	}
	sum, err := d.Checksum()
	if err != nil {
		t.Fatalf("Checksum: %v", err)
	}
	if want := "f572d396fae9206628714fb2ce00f72e94f2258f"; sum != want || d.Params.Shasum != want {
		t.Fatalf("Checksum: want=%s got=%s", want, sum)
	}

	if _, err := Open(filepath.Join(dir, "missing"), logger.NewNop()); err == nil {
		t.Fatalf("Open missing: expected error")
	}
	if _, err := Open(dir, logger.NewNop()); err == nil {
		t.Fatalf("Open directory: expected error")
	}
}

func TestMoveCreatesDirectories(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "incoming", "a.dat")
	writeFile(t, src, "a")
	d, err := Open(src, logger.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	dest := filepath.Join(dir, "root", "L0", "2024", "a.dat")
	if err := d.Move(dest); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Fatalf("dest missing: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("source still present: %v", err)
	}
	if d.Path != dest {
		t.Fatalf("Path: want=%s got=%s", dest, d.Path)
	}
}

func TestMoveSymlinkOnlyUnlinks(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "root", "L0", "a.dat")
	writeFile(t, target, "a")
	link := filepath.Join(dir, "incoming", "a.dat")
	if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	d, err := Open(link, logger.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := d.Move(target); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if _, err := os.Lstat(link); !os.IsNotExist(err) {
		t.Fatalf("link not removed: %v", err)
	}
	if b, err := os.ReadFile(target); err != nil || string(b) != "a" {
		t.Fatalf("target changed: %q %v", b, err)
	}
}

func tgz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)
	for name, body := range files {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
			t.Fatalf("tar header: %v", err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatalf("tar write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func TestMoveExpandsTGZ(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "incoming", "bundle.tgz")
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(src, tgz(t, map[string]string{"plots/a.png": "png"}), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	d, err := Open(src, logger.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	dest := filepath.Join(dir, "root", "bundles", "bundle.tgz")
	if err := d.Move(dest); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if b, err := os.ReadFile(filepath.Join(dir, "root", "plots", "a.png")); err != nil || string(b) != "png" {
		t.Fatalf("expanded entry: %q %v", b, err)
	}

	bad := filepath.Join(dir, "incoming", "bad.tgz")
	writeFile(t, bad, "not gzip")
	d, err = Open(bad, logger.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := d.Move(filepath.Join(dir, "root", "bundles", "bad.tgz")); err != nil {
		t.Fatalf("Move corrupt archive should succeed: %v", err)
	}
	if n, err := ExtractTGZ(filepath.Join(dir, "root", "bundles", "bad.tgz"), dir); err == nil || n != 0 {
		t.Fatalf("ExtractTGZ corrupt: n=%d err=%v", n, err)
	}
}

func TestExtractTGZRejectsEscape(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.tgz")
	if err := os.WriteFile(archive, tgz(t, map[string]string{"../../evil": "x"}), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ExtractTGZ(archive, filepath.Join(dir, "out")); err == nil {
		t.Fatalf("ExtractTGZ: expected escape error")
	}
}

func TestParamsJSON(t *testing.T) {
	in := []byte(`{"filename":"p_20240301_v1.0.0.dat","utc_file_date":"2024-03-01","version":"1.0.0","product_id":3,"process_keywords":"nnn=001"}`)
	var p Params
	if err := json.Unmarshal(in, &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := Params{
		Filename:        "p_20240301_v1.0.0.dat",
		UTCFileDate:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		UTCStartTime:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		UTCStopTime:     time.Date(2024, 3, 1, 23, 59, 59, 999999000, time.UTC),
		Version:         version.New(1, 0, 0),
		ProductID:       3,
		ProcessKeywords: "nnn=001",
	}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Fatalf("Unmarshal mismatch (-want +got):\n%s", diff)
	}

	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back Params
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal back: %v", err)
	}
	if diff := cmp.Diff(p, back); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}

	for _, bad := range []string{
		`{"filename":"x","utc_file_date":"2024-03-01"}`,
		`{"filename":"x","version":"1.0.0"}`,
		`{"filename":"x","version":"1.0.0","utc_start_time":"2024-03-02","utc_stop_time":"2024-03-01"}`,
	} {
		if err := json.Unmarshal([]byte(bad), &p); err == nil {
			t.Fatalf("Unmarshal(%s): expected error", bad)
		}
	}
	f := want.File()
	if f.InterfaceVersion != 1 || f.ProcessKeywords == nil || *f.ProcessKeywords != "nnn=001" || f.Shasum != nil {
		t.Fatalf("File: unexpected %+v", f)
	}
}
