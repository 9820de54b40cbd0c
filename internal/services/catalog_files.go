package services

import (
	"fmt"
	"path/filepath"
	"time"

	catalogdb "github.com/yungbote/dbprocessing/internal/data/db"
	"github.com/yungbote/dbprocessing/internal/data/repos"
	types "github.com/yungbote/dbprocessing/internal/domain"
	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
	dperrors "github.com/yungbote/dbprocessing/internal/pkg/errors"
	"github.com/yungbote/dbprocessing/internal/pkg/filefmt"
	"github.com/yungbote/dbprocessing/internal/pkg/timeutil"
	"github.com/yungbote/dbprocessing/internal/pkg/version"
	"github.com/yungbote/dbprocessing/internal/platform/envutil"
)

func (s *catalogService) GetFiles(dbc dbctx.Context, q repos.FileQuery) ([]*types.File, error) {
	out, err := s.repos.File.Query(dbc, q)
	return out, catalogdb.MapError("get files", err)
}

// GetFilesByProductDate is inclusive on both ends.
func (s *catalogService) GetFilesByProductDate(dbc dbctx.Context, productID int64, start, end time.Time, newest bool) ([]*types.File, error) {
	start, end = timeutil.Day(start), timeutil.Day(end)
	return s.GetFiles(dbc, repos.FileQuery{
		ProductID: productID,
		StartDate: &start,
		EndDate:   &end,
		Newest:    newest,
	})
}

func (s *catalogService) GetFilesByProductTime(dbc dbctx.Context, productID int64, start, end time.Time, newest bool) ([]*types.File, error) {
	return s.GetFiles(dbc, repos.FileQuery{
		ProductID: productID,
		StartTime: &start,
		EndTime:   &end,
		Newest:    newest,
	})
}

func (s *catalogService) GetFileParents(dbc dbctx.Context, fileID int64) ([]*types.File, error) {
	out, err := s.repos.FileLink.GetParents(dbc, fileID)
	return out, catalogdb.MapError("get file parents", err)
}

func (s *catalogService) GetFileChildren(dbc dbctx.Context, fileID int64) ([]*types.File, error) {
	out, err := s.repos.FileLink.GetChildren(dbc, fileID)
	return out, catalogdb.MapError("get file children", err)
}

func (s *catalogService) GetFileVersion(dbc dbctx.Context, fileID int64) (version.Version, error) {
	f, err := s.GetFile(dbc, fileID)
	if err != nil {
		return version.Version{}, err
	}
	return f.Version(), nil
}

// GetFileDates lists every UTC day the file's data touches.
func (s *catalogService) GetFileDates(dbc dbctx.Context, fileID int64) ([]time.Time, error) {
	f, err := s.GetFile(dbc, fileID)
	if err != nil {
		return nil, err
	}
	return timeutil.DaysSpanned(f.UTCStartTime, f.UTCStopTime), nil
}

// GetFileFullPath returns where the file lives in the managed tree.
func (s *catalogService) GetFileFullPath(dbc dbctx.Context, fileID int64) (string, error) {
	tb, err := s.GetTraceback(dbc, "file", fileID)
	if err != nil {
		return "", err
	}
	dir, err := ProductDir(tb, tb.File.UTCFileDate, tb.File.Version())
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, tb.File.Filename), nil
}

// ProductDir expands the product's relative path for one file date and
// version and anchors it at the mission root.
func ProductDir(tb *Traceback, day time.Time, v version.Version) (string, error) {
	if tb == nil || tb.Product == nil {
		return "", fmt.Errorf("%w: traceback without product", dperrors.ErrInvalidArgument)
	}
	f := tb.Fields()
	f["VERSION"] = v
	f.SetDatetime(day)
	rel, err := filefmt.Expand(tb.Product.RelativePath, f)
	if err != nil {
		return "", fmt.Errorf("product %s relative path: %w", tb.Product.ProductName, err)
	}
	return envutil.ResolvePath(tb.dirs.Root, rel), nil
}

// GetFileCode returns the code that produced the file, or nil for files that
// entered through ingestion only.
func (s *catalogService) GetFileCode(dbc dbctx.Context, fileID int64) (*types.Code, error) {
	ids, err := s.repos.FileLink.GetCodeIDs(dbc, fileID)
	if err != nil {
		return nil, catalogdb.MapError("get file code", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > 1 {
		s.log.Warn("File linked to more than one code", "file_id", fileID, "codes", ids)
	}
	return s.GetCode(dbc, ids[0])
}

// FileIsNewest reports whether fileID is the single newest version of its
// (product, date) group.
func (s *catalogService) FileIsNewest(dbc dbctx.Context, fileID int64) (bool, error) {
	f, err := s.GetFile(dbc, fileID)
	if err != nil {
		return false, err
	}
	group, err := s.repos.File.ListGroup(dbc, f.ProductID, f.UTCFileDate)
	if err != nil {
		return false, catalogdb.MapError("file is newest", err)
	}
	if len(group) == 0 {
		return false, nil
	}
	return group[0].FileID == fileID, nil
}

// UpdateNewest marks the highest version of a (product, date) group newest
// and clears the flag on every other row.
func (s *catalogService) UpdateNewest(dbc dbctx.Context, productID int64, day time.Time) error {
	return s.inTx(dbc, func(dbc dbctx.Context) error {
		group, err := s.repos.File.ListGroup(dbc, productID, day)
		if err != nil {
			return catalogdb.MapError("update newest", err)
		}
		if len(group) == 0 {
			return nil
		}
		var stale []int64
		for _, f := range group[1:] {
			if f.NewestVersion {
				stale = append(stale, f.FileID)
			}
		}
		if err := s.repos.File.SetNewest(dbc, stale, false); err != nil {
			return catalogdb.MapError("update newest", err)
		}
		if !group[0].NewestVersion {
			if err := s.repos.File.SetNewest(dbc, []int64{group[0].FileID}, true); err != nil {
				return catalogdb.MapError("update newest", err)
			}
		}
		return nil
	})
}

func (s *catalogService) AddFile(dbc dbctx.Context, f *types.File) error {
	if f == nil || f.Filename == "" {
		return fmt.Errorf("%w: file without name", dperrors.ErrInvalidArgument)
	}
	if f.InterfaceVersion < 1 {
		return fmt.Errorf("%w: %s interface version %d", dperrors.ErrInvalidArgument, f.Filename, f.InterfaceVersion)
	}
	if f.UTCStopTime.Before(f.UTCStartTime) {
		return fmt.Errorf("%w: %s stops before it starts", dperrors.ErrInvalidArgument, f.Filename)
	}
	if v := f.Version(); !v.Valid() {
		s.log.Warn("File version component out of range", "filename", f.Filename, "version", v.String())
	}
	if err := s.repos.File.Create(dbc, f); err != nil {
		return catalogdb.MapError("add file "+f.Filename, err)
	}
	return nil
}

func (s *catalogService) AddFileParents(dbc dbctx.Context, resultingID int64, sourceIDs []int64) error {
	return catalogdb.MapError("add file parents", s.repos.FileLink.AddParents(dbc, resultingID, sourceIDs))
}

// AddFileCodeLink records which code produced a file. A file whose interface
// differs from the code's output interface is logged but still linked.
func (s *catalogService) AddFileCodeLink(dbc dbctx.Context, resultingID, codeID int64) error {
	f, err := s.GetFile(dbc, resultingID)
	if err != nil {
		return err
	}
	c, err := s.GetCode(dbc, codeID)
	if err != nil {
		return err
	}
	if f.InterfaceVersion != c.OutputInterfaceVersion {
		s.log.Warn("File interface differs from code output interface",
			"file_id", f.FileID,
			"filename", f.Filename,
			"file_interface", f.InterfaceVersion,
			"code_id", c.CodeID,
			"code_output_interface", c.OutputInterfaceVersion,
		)
	}
	return catalogdb.MapError("add file code link", s.repos.FileLink.AddCode(dbc, resultingID, codeID))
}
