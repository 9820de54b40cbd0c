package inspector

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/yungbote/dbprocessing/internal/diskfile"
	"github.com/yungbote/dbprocessing/internal/pkg/filefmt"
	"github.com/yungbote/dbprocessing/internal/pkg/timeutil"
	"github.com/yungbote/dbprocessing/internal/pkg/version"
)

// TemplateName is the inspector row filename that selects Template.
const TemplateName = "template"

// Template claims files whose name matches the product's format. The date
// and version come from the name when the format carries them, otherwise
// from the date= and version= arguments. version defaults to 1.0.0.
func Template() Inspector {
	return Func(func(ctx context.Context, req Request) (*diskfile.Params, error) {
		if req.Catalog == nil {
			return nil, fmt.Errorf("template inspector: no catalog")
		}
		tb, err := req.Catalog.GetTraceback(req.DBC, "product", req.ProductID)
		if err != nil {
			return nil, err
		}
		name := filepath.Base(req.Path)
		tmpl := req.Args.Get("format", tb.Product.Format)
		ok, err := filefmt.Match(tmpl, name, tb.Fields())
		if err != nil || !ok {
			return nil, err
		}
		parsed, ok, err := filefmt.Parse(tmpl, name)
		if err != nil || !ok {
			return nil, err
		}

		p := &diskfile.Params{Filename: name, ProductID: req.ProductID}
		if t, ok := parsed.Time(); ok {
			p.UTCFileDate = timeutil.Day(t)
			p.UTCStartTime = t
		} else if s := req.Args.Get("date", ""); s != "" {
			t, err := timeutil.ParseTime(s)
			if err != nil {
				return nil, fmt.Errorf("template inspector date: %w", err)
			}
			p.UTCFileDate = timeutil.Day(t)
		} else {
			return nil, nil
		}
		if v, ok := parsed.Version(); ok {
			p.Version = v
		} else if v, err := version.Parse(req.Args.Get("version", "1.0.0")); err == nil {
			p.Version = v
		} else {
			return nil, fmt.Errorf("template inspector version: %w", err)
		}
		if kw := keywords(parsed); kw != "" {
			p.ProcessKeywords = kw
		}
		if p.UTCStopTime.IsZero() {
			p.UTCStopTime = p.UTCFileDate.AddDate(0, 0, 1).Add(-1)
			if p.UTCStopTime.Before(p.UTCStartTime) {
				p.UTCStopTime = p.UTCStartTime
			}
		}
		if p.UTCStartTime.IsZero() {
			p.UTCStartTime = p.UTCFileDate
		}
		return p, nil
	})
}

// keywords records the literal-count captures (nn, ???) as process keywords
// so downstream filenames can reuse them.
func keywords(f filefmt.Fields) string {
	var parts []string
	for _, k := range []string{"nn", "nnn", "nnnn", "??", "???", "????", "APID", "mday"} {
		if v, ok := f[k]; ok {
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	return strings.Join(parts, " ")
}
