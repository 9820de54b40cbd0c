package services

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	catalogdb "github.com/yungbote/dbprocessing/internal/data/db"
	"github.com/yungbote/dbprocessing/internal/data/repos"
	types "github.com/yungbote/dbprocessing/internal/domain"
	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
	dperrors "github.com/yungbote/dbprocessing/internal/pkg/errors"
)

// CheckFilesOnDisk stats every file of productID in the managed tree, fixes
// exists_on_disk where it is wrong and returns the ids of missing files.
func (s *catalogService) CheckFilesOnDisk(dbc dbctx.Context, productID int64) ([]int64, error) {
	files, err := s.GetFiles(dbc, repos.FileQuery{ProductID: productID})
	if err != nil {
		return nil, err
	}
	var missingIDs []int64
	for _, f := range files {
		path, err := s.GetFileFullPath(dbc, f.FileID)
		if err != nil {
			return missingIDs, err
		}
		_, statErr := os.Stat(path)
		exists := statErr == nil
		if !exists {
			missingIDs = append(missingIDs, f.FileID)
		}
		if exists == f.ExistsOnDisk {
			continue
		}
		if err := s.repos.File.SetExistsOnDisk(dbc, f.FileID, exists); err != nil {
			return missingIDs, catalogdb.MapError("check files on disk", err)
		}
		s.log.Info("Corrected exists_on_disk", "file_id", f.FileID, "filename", f.Filename, "exists", exists)
	}
	return missingIDs, nil
}

// PurgeFile deletes a file row with every row that references it and
// recomputes the newest version of its group.
func (s *catalogService) PurgeFile(dbc dbctx.Context, fileID int64, removeFromDisk bool) error {
	f, err := s.GetFile(dbc, fileID)
	if err != nil {
		return err
	}
	path := ""
	if removeFromDisk {
		if path, err = s.GetFileFullPath(dbc, fileID); err != nil {
			return err
		}
	}
	err = s.inTx(dbc, func(dbc dbctx.Context) error {
		if err := s.repos.File.Delete(dbc, fileID); err != nil {
			return catalogdb.MapError("purge file", err)
		}
		return s.UpdateNewest(dbc, f.ProductID, f.UTCFileDate)
	})
	if err != nil {
		return err
	}
	s.log.Info("Purged file", "file_id", fileID, "filename", f.Filename)
	if path != "" {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("purge %s from disk: %w", path, err)
		}
	}
	return nil
}

// RenameFile changes the catalog filename and optionally the file on disk.
func (s *catalogService) RenameFile(dbc dbctx.Context, fileID int64, newName string, moveOnDisk bool) error {
	newName = strings.TrimSpace(newName)
	if newName == "" || strings.ContainsRune(newName, filepath.Separator) {
		return fmt.Errorf("%w: bad file name %q", dperrors.ErrInvalidArgument, newName)
	}
	oldPath := ""
	if moveOnDisk {
		var err error
		if oldPath, err = s.GetFileFullPath(dbc, fileID); err != nil {
			return err
		}
	}
	if err := s.repos.File.Rename(dbc, fileID, newName); err != nil {
		return catalogdb.MapError("rename file", err)
	}
	if oldPath != "" {
		newPath := filepath.Join(filepath.Dir(oldPath), newName)
		if err := os.Rename(oldPath, newPath); err != nil {
			return fmt.Errorf("rename %s: %w", oldPath, err)
		}
	}
	return nil
}

func (s *catalogService) TagRelease(dbc dbctx.Context, fileIDs []int64, release string) (int64, error) {
	release = strings.TrimSpace(release)
	if release == "" {
		return 0, fmt.Errorf("%w: empty release", dperrors.ErrInvalidArgument)
	}
	n, err := s.repos.Release.Tag(dbc, fileIDs, release)
	return n, catalogdb.MapError("tag release", err)
}

func (s *catalogService) GetRelease(dbc dbctx.Context, release string) ([]*types.File, error) {
	out, err := s.repos.Release.ListFiles(dbc, release)
	return out, catalogdb.MapError("get release", err)
}
