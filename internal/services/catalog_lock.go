package services

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"syscall"
	"time"

	"github.com/google/uuid"

	catalogdb "github.com/yungbote/dbprocessing/internal/data/db"
	types "github.com/yungbote/dbprocessing/internal/domain"
	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
	dperrors "github.com/yungbote/dbprocessing/internal/pkg/errors"
)

// LockHeldError describes the run currently holding the processing lock.
type LockHeldError struct {
	LoggingID int64
	PID       int
	Hostname  string
	User      string
	Started   time.Time
	// Alive is set when the holder ran on this host; it is only a hint.
	Alive *bool
}

func (e *LockHeldError) Error() string {
	alive := "unknown"
	if e.Alive != nil {
		alive = fmt.Sprintf("%t", *e.Alive)
	}
	return fmt.Sprintf("%s: logging_id=%d pid=%d host=%s user=%s started=%s alive=%s",
		dperrors.ErrLockHeld, e.LoggingID, e.PID, e.Hostname, e.User,
		e.Started.UTC().Format(time.RFC3339), alive)
}

func (e *LockHeldError) Unwrap() error { return dperrors.ErrLockHeld }

// DefaultRunInfo describes the current process.
func DefaultRunInfo() RunInfo {
	host, _ := os.Hostname()
	name := os.Getenv("USER")
	if u, err := user.Current(); err == nil && u.Username != "" {
		name = u.Username
	}
	return RunInfo{
		PID:      os.Getpid(),
		User:     name,
		Hostname: host,
		RunToken: uuid.NewString(),
	}
}

// StartLogging takes the processing lock. When another run holds it the
// returned error wraps ErrLockHeld and is a *LockHeldError.
func (s *catalogService) StartLogging(dbc dbctx.Context, run RunInfo) (*types.Logging, error) {
	m, err := s.CurrentMission(dbc)
	if err != nil {
		return nil, err
	}
	if run.RunToken == "" {
		run.RunToken = uuid.NewString()
	}
	row := &types.Logging{
		PID:                 run.PID,
		ProcessingStartTime: time.Now().UTC(),
		MissionID:           m.MissionID,
		User:                run.User,
		Hostname:            run.Hostname,
		RunToken:            run.RunToken,
	}
	if run.Comment != "" {
		c := run.Comment
		row.Comment = &c
	}
	holder, err := s.repos.Logging.Acquire(dbc, row)
	if err != nil {
		return nil, catalogdb.MapError("start logging", err)
	}
	if holder != nil {
		lerr := &LockHeldError{
			LoggingID: holder.LoggingID,
			PID:       holder.PID,
			Hostname:  holder.Hostname,
			User:      holder.User,
			Started:   holder.ProcessingStartTime,
		}
		if host, _ := os.Hostname(); host != "" && host == holder.Hostname {
			alive := pidAlive(holder.PID)
			lerr.Alive = &alive
		}
		s.log.Warn("Processing lock held",
			"logging_id", holder.LoggingID,
			"pid", holder.PID,
			"hostname", holder.Hostname,
			"started", holder.ProcessingStartTime,
		)
		return nil, lerr
	}
	s.log.Info("Processing lock acquired", "logging_id", row.LoggingID, "run_token", row.RunToken, "pid", row.PID)
	return row, nil
}

func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// StopLogging releases the lock held by loggingID and records the exit
// comment and run summary.
func (s *catalogService) StopLogging(dbc dbctx.Context, loggingID int64, comment string, summary any) error {
	if err := s.repos.Logging.Finish(dbc, loggingID, comment, jsonOf(summary)); err != nil {
		return catalogdb.MapError("stop logging", err)
	}
	s.log.Info("Processing lock released", "logging_id", loggingID, "comment", comment)
	return nil
}

// ResetProcessingFlag clears every held lock. It is the only way to recover
// from a run that died holding it.
func (s *catalogService) ResetProcessingFlag(dbc dbctx.Context, comment string) (int64, error) {
	if comment == "" {
		return 0, fmt.Errorf("%w: reset needs a comment", dperrors.ErrInvalidArgument)
	}
	n, err := s.repos.Logging.ResetAll(dbc, comment)
	if err != nil {
		return 0, catalogdb.MapError("reset processing flag", err)
	}
	s.log.Warn("Processing flag reset", "rows", n, "comment", comment)
	return n, nil
}

func (s *catalogService) GetActiveLocks(dbc dbctx.Context) ([]*types.Logging, error) {
	out, err := s.repos.Logging.GetActive(dbc)
	return out, catalogdb.MapError("active locks", err)
}

func (s *catalogService) AddLoggingFile(dbc dbctx.Context, loggingID, fileID, codeID int64) error {
	return catalogdb.MapError("add logging file", s.repos.Logging.AddFile(dbc, &types.LoggingFile{
		LoggingID: loggingID,
		FileID:    fileID,
		CodeID:    codeID,
	}))
}
