package diskfile

import (
	"archive/tar"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"

	dperrors "github.com/yungbote/dbprocessing/internal/pkg/errors"
	"github.com/yungbote/dbprocessing/internal/platform/logger"
)

// DiskFile is a physical file on its way into the managed tree.
type DiskFile struct {
	Path     string
	Params   Params
	Writable bool
	Size     int64

	log *logger.Logger
}

// Open probes path. An unreadable file is an error; a file that cannot be
// written or moved only logs a warning.
func Open(path string, baseLog *logger.Logger) (*DiskFile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("diskfile %s: %w", path, err)
	}
	log := baseLog.With("component", "DiskFile", "path", abs)
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("diskfile %s: %w: %w", abs, dperrors.ErrIngestReject, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("diskfile %s: %w: is a directory", abs, dperrors.ErrIngestReject)
	}
	r, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("diskfile %s: %w: not readable: %w", abs, dperrors.ErrIngestReject, err)
	}
	_ = r.Close()

	d := &DiskFile{Path: abs, Size: info.Size(), log: log}
	d.Writable = writable(abs)
	if !d.Writable {
		log.Warn("File is not writable, move may fail")
	}
	d.Params.Filename = filepath.Base(abs)
	d.Params.FileCreateDate = info.ModTime().UTC()
	d.Params.ExistsOnDisk = true
	return d, nil
}

func writable(path string) bool {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

// Checksum returns the SHA-1 of the file contents and records it in Params.
func (d *DiskFile) Checksum() (string, error) {
	sum, err := SHA1(d.Path)
	if err != nil {
		return "", err
	}
	d.Params.Shasum = sum
	return sum, nil
}

func SHA1(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("sha1 %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Move places the file at dest. A symbolic link is only unlinked: its
// target is already where it belongs. Missing directories are created and
// the move retried once. A non-empty .tgz destination is expanded one level
// above its directory.
func (d *DiskFile) Move(dest string) error {
	start := time.Now()
	if info, err := os.Lstat(d.Path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		if err := os.Remove(d.Path); err != nil {
			return fmt.Errorf("unlink %s: %w", d.Path, err)
		}
		d.log.Info("Removed symlink, target tracked in place", "dest", dest)
		d.Path = dest
		return nil
	}
	if err := moveFile(d.Path, dest); err != nil {
		if mkErr := os.MkdirAll(filepath.Dir(dest), 0o755); mkErr != nil {
			return fmt.Errorf("move %s: %w", d.Path, mkErr)
		}
		if err := moveFile(d.Path, dest); err != nil {
			return fmt.Errorf("move %s -> %s: %w", d.Path, dest, err)
		}
	}
	d.log.Info("Moved file",
		"dest", dest,
		"size", humanize.Bytes(uint64(max(d.Size, 0))),
		"took", time.Since(start).String(),
	)
	d.Path = dest
	if strings.HasSuffix(dest, ".tgz") {
		target := filepath.Dir(filepath.Dir(dest))
		n, err := ExtractTGZ(dest, target)
		if err != nil {
			d.log.Warn("Archive not expanded", "archive", dest, "error", err)
		} else if n > 0 {
			d.log.Info("Expanded archive", "archive", dest, "target", target, "entries", n)
		}
	}
	return nil
}

// moveFile renames, falling back to copy and remove across devices.
func moveFile(src, dest string) error {
	err := os.Rename(src, dest)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if _, statErr := os.Stat(filepath.Dir(dest)); statErr != nil {
		return err
	}
	if cpErr := copyFile(src, dest); cpErr != nil {
		return cpErr
	}
	return os.Remove(src)
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// ExtractTGZ expands a gzip tar archive under target and returns the number
// of entries written. Empty archives yield zero entries and no error.
func ExtractTGZ(archive, target string) (int, error) {
	info, err := os.Stat(archive)
	if err != nil {
		return 0, err
	}
	if info.Size() == 0 {
		return 0, nil
	}
	f, err := os.Open(archive)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	gr, err := gzip.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("gzip %s: %w", archive, err)
	}
	defer gr.Close()
	tr := tar.NewReader(gr)
	root := filepath.Clean(target)
	n := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("tar %s: %w", archive, err)
		}
		name := filepath.Join(root, filepath.FromSlash(hdr.Name))
		if name != root && !strings.HasPrefix(name, root+string(os.PathSeparator)) {
			return n, fmt.Errorf("tar %s: entry %q escapes target", archive, hdr.Name)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(name, 0o755); err != nil {
				return n, err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
				return n, err
			}
			out, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode).Perm()|0o200)
			if err != nil {
				return n, err
			}
			if _, err := io.Copy(out, tr); err != nil {
				_ = out.Close()
				return n, err
			}
			if err := out.Close(); err != nil {
				return n, err
			}
		default:
			continue
		}
		n++
	}
}
