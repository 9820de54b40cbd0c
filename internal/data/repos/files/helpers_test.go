package files

import types "github.com/yungbote/dbprocessing/internal/domain"

func names(fs []*types.File) []string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.Filename)
	}
	return out
}
