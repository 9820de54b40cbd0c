package planner

import (
	"errors"

	dperrors "github.com/yungbote/dbprocessing/internal/pkg/errors"
)

func isMissing(err error) bool { return errors.Is(err, dperrors.ErrCatalogMissing) }
