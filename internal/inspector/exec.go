package inspector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/yungbote/dbprocessing/internal/diskfile"
	"github.com/yungbote/dbprocessing/internal/platform/logger"
)

// Exec runs an external inspector program as
//
//	<path> <candidate> <product_id> k=v...
//
// It claims by printing a JSON params object on stdout and passes by
// printing nothing. A non-zero exit is reported as an error.
func Exec(path string, baseLog *logger.Logger) Inspector {
	log := baseLog.With("component", "ExecInspector", "inspector", path)
	return Func(func(ctx context.Context, req Request) (*diskfile.Params, error) {
		argv := []string{req.Path, strconv.FormatInt(req.ProductID, 10)}
		keys := make([]string, 0, len(req.Args))
		for k := range req.Args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			argv = append(argv, k+"="+req.Args[k])
		}
		cmd := exec.CommandContext(ctx, path, argv...)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return nil, fmt.Errorf("inspector %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
		}
		if s := strings.TrimSpace(stderr.String()); s != "" {
			log.Debug("Inspector stderr", "candidate", req.Path, "stderr", s)
		}
		out := bytes.TrimSpace(stdout.Bytes())
		if len(out) == 0 || bytes.Equal(out, []byte("null")) {
			return nil, nil
		}
		var p diskfile.Params
		if err := json.Unmarshal(out, &p); err != nil {
			return nil, fmt.Errorf("inspector %s: bad output: %w", path, err)
		}
		return &p, nil
	})
}
