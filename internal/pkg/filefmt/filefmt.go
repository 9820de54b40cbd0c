// Package filefmt expands product format templates such as
// "{SATELLITE}_{PRODUCT}_{Y}{m}{d}_v{VERSION}.cdf" into filenames, and turns
// the same templates into regular expressions that match existing names.
package filefmt

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/dbprocessing/internal/pkg/version"
)

// Fields holds keyword values. Values may be strings, integers, time.Time
// (for "datetime" and "DATE") or version.Version (for "VERSION").
type Fields map[string]any

const Datetime = "datetime"

var monthAbbr = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

type keyword struct {
	regex string
	width int
	hex   bool
	enum  []string
}

const (
	dateRegex     = `(?:19|2\d)\d\d(?:0\d|1[0-2])[0-3]\d`
	verbatimRegex = `.+?`
)

var keywords = map[string]keyword{
	"Y":       {regex: `(?:19|2\d)\d\d`, width: 4},
	"m":       {regex: `(?:0\d|1[0-2])`, width: 2},
	"d":       {regex: `[0-3]\d`, width: 2},
	"y":       {regex: `\d\d`, width: 2},
	"j":       {regex: `[0-3]\d\d`, width: 3},
	"H":       {regex: `[0-2]\d`, width: 2},
	"M":       {regex: `[0-6]\d`, width: 2},
	"S":       {regex: `[0-6]\d`, width: 2},
	"MILLI":   {regex: `\d{3}`, width: 3},
	"MICRO":   {regex: `\d{3}`, width: 3},
	"b":       {regex: `(?:` + strings.Join(monthAbbr, "|") + `)`, enum: monthAbbr},
	"DATE":    {regex: dateRegex, width: 8},
	Datetime:  {regex: dateRegex, width: 8},
	"VERSION": {regex: `\d+\.\d+\.\d+`},
	"APID":    {regex: `[\da-fA-F]+`, hex: true},
	"mday":    {regex: `-?\d+`},
	"nn":      {regex: `\d\d`, width: 2},
	"nnn":     {regex: `\d\d\d`, width: 3},
	"nnnn":    {regex: `\d{4}`, width: 4},
	"??":      {regex: `\w{2}`},
	"???":     {regex: `\w{3}`},
	"????":    {regex: `\w{4}`},
	"QACODE":  {regex: `(?:ok|ignore|problem)`, enum: []string{"ok", "ignore", "problem"}},

	"INSTRUMENT":  {regex: verbatimRegex},
	"SPACECRAFT":  {regex: verbatimRegex},
	"SATELLITE":   {regex: verbatimRegex},
	"MISSION":     {regex: verbatimRegex},
	"PRODUCT":     {regex: verbatimRegex},
	"LEVEL":       {regex: verbatimRegex},
	"ROOTDIR":     {regex: verbatimRegex},
	"CODEDIR":     {regex: verbatimRegex},
	"CODEVERSION": {regex: `\d+\.\d+\.\d+`},
}

// Known reports whether key is one of the enumerated template keywords.
func Known(key string) bool {
	_, ok := keywords[key]
	return ok
}

type token struct {
	literal string
	key     string
}

func tokenize(tmpl string) ([]token, error) {
	var out []token
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			out = append(out, token{literal: lit.String()})
			lit.Reset()
		}
	}
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch {
		case c == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			lit.WriteByte('{')
			i++
		case c == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			lit.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("template %q: unterminated '{' at %d", tmpl, i)
			}
			key := tmpl[i+1 : i+1+end]
			if key == "" {
				return nil, fmt.Errorf("template %q: empty keyword at %d", tmpl, i)
			}
			flush()
			out = append(out, token{key: key})
			i += end + 1
		case c == '}':
			return nil, fmt.Errorf("template %q: unmatched '}' at %d", tmpl, i)
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return out, nil
}

// Keys lists the keywords referenced by tmpl, in order of appearance.
func Keys(tmpl string) ([]string, error) {
	toks, err := tokenize(tmpl)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, t := range toks {
		if t.key != "" {
			keys = append(keys, t.key)
		}
	}
	return keys, nil
}

// Clone returns a shallow copy of f.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Merge copies every key of o into f, overwriting.
func (f Fields) Merge(o Fields) Fields {
	for k, v := range o {
		f[k] = v
	}
	return f
}

// SetDatetime fills the calendar and clock keywords from t without
// overwriting values that are already present.
func (f Fields) SetDatetime(t time.Time) Fields {
	t = t.UTC()
	derived := Fields{
		Datetime: t,
		"Y":      t.Year(),
		"m":      int(t.Month()),
		"d":      t.Day(),
		"y":      t.Year() % 100,
		"j":      t.YearDay(),
		"DATE":   t.Format("20060102"),
		"b":      monthAbbr[t.Month()-1],
		"H":      t.Hour(),
		"M":      t.Minute(),
		"S":      t.Second(),
		"MILLI":  t.Nanosecond() / int(time.Millisecond),
		"MICRO":  (t.Nanosecond() / int(time.Microsecond)) % 1000,
	}
	for k, v := range derived {
		if _, ok := f[k]; !ok {
			f[k] = v
		}
	}
	return f
}

func (f Fields) normalized() Fields {
	out := f.Clone()
	if dt, ok := out[Datetime].(time.Time); ok {
		out.SetDatetime(dt)
	}
	return out
}

// Expand formats tmpl. Every referenced keyword must have a value.
func Expand(tmpl string, fields Fields) (string, error) {
	toks, err := tokenize(tmpl)
	if err != nil {
		return "", err
	}
	f := fields.normalized()
	var b strings.Builder
	for _, t := range toks {
		if t.key == "" {
			b.WriteString(t.literal)
			continue
		}
		v, ok := f[t.key]
		if !ok {
			if !Known(t.key) {
				return "", fmt.Errorf("template %q: unknown keyword {%s}", tmpl, t.key)
			}
			return "", fmt.Errorf("template %q: no value for {%s}", tmpl, t.key)
		}
		s, err := formatValue(t.key, v)
		if err != nil {
			return "", fmt.Errorf("template %q: %w", tmpl, err)
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

// Regex returns an anchored expression matching names produced by tmpl.
// Keywords with a value in fields match that value literally; the rest
// match their keyword pattern.
func Regex(tmpl string, fields Fields) (string, error) {
	expr, _, err := buildRegex(tmpl, fields, false)
	return expr, err
}

func buildRegex(tmpl string, fields Fields, capture bool) (string, []string, error) {
	toks, err := tokenize(tmpl)
	if err != nil {
		return "", nil, err
	}
	f := fields.normalized()
	var b strings.Builder
	var groups []string
	b.WriteString("^")
	for _, t := range toks {
		if t.key == "" {
			b.WriteString(regexp.QuoteMeta(t.literal))
			continue
		}
		var frag string
		if v, ok := f[t.key]; ok {
			s, err := formatValue(t.key, v)
			if err != nil {
				return "", nil, fmt.Errorf("template %q: %w", tmpl, err)
			}
			frag = regexp.QuoteMeta(s)
		} else {
			kw, ok := keywords[t.key]
			if !ok {
				return "", nil, fmt.Errorf("template %q: unknown keyword {%s}", tmpl, t.key)
			}
			frag = kw.regex
		}
		if capture {
			b.WriteString("(" + frag + ")")
			groups = append(groups, t.key)
		} else {
			b.WriteString(frag)
		}
	}
	b.WriteString("$")
	return b.String(), groups, nil
}

// Match reports whether name could have been produced by tmpl given fields.
func Match(tmpl, name string, fields Fields) (bool, error) {
	expr, err := Regex(tmpl, fields)
	if err != nil {
		return false, err
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return false, fmt.Errorf("template %q: compile: %w", tmpl, err)
	}
	return re.MatchString(name), nil
}

// Parse recovers keyword values from name. ok is false when name does not
// match tmpl, or when a repeated keyword matched different text.
func Parse(tmpl, name string) (Fields, bool, error) {
	expr, groups, err := buildRegex(tmpl, nil, true)
	if err != nil {
		return nil, false, err
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, false, fmt.Errorf("template %q: compile: %w", tmpl, err)
	}
	m := re.FindStringSubmatch(name)
	if m == nil {
		return nil, false, nil
	}
	out := Fields{}
	for i, key := range groups {
		val := m[i+1]
		if prev, seen := out[key]; seen && prev != val {
			return nil, false, nil
		}
		out[key] = val
	}
	return out, true, nil
}

// Time assembles a timestamp from parsed date and clock keywords. It uses
// DATE or datetime, else Y with m/d or j, else y with m/d.
func (f Fields) Time() (time.Time, bool) {
	year, month, day, ok := f.date()
	if !ok {
		return time.Time{}, false
	}
	h, _ := f.intValue("H")
	mi, _ := f.intValue("M")
	s, _ := f.intValue("S")
	ms, _ := f.intValue("MILLI")
	us, _ := f.intValue("MICRO")
	ns := ms*int(time.Millisecond) + us*int(time.Microsecond)
	return time.Date(year, time.Month(month), day, h, mi, s, ns, time.UTC), true
}

func (f Fields) date() (year, month, day int, ok bool) {
	for _, k := range []string{"DATE", Datetime} {
		switch v := f[k].(type) {
		case time.Time:
			return v.Year(), int(v.Month()), v.Day(), true
		case string:
			if t, err := time.Parse("20060102", v); err == nil {
				return t.Year(), int(t.Month()), t.Day(), true
			}
		}
	}
	y, hasY := f.intValue("Y")
	if !hasY {
		if yy, ok := f.intValue("y"); ok {
			y, hasY = 2000+yy, true
		}
	}
	if !hasY {
		return 0, 0, 0, false
	}
	if m, ok := f.intValue("m"); ok {
		if d, ok := f.intValue("d"); ok {
			return y, m, d, true
		}
	}
	if s, ok := f["b"].(string); ok {
		for i, abbr := range monthAbbr {
			if abbr == s {
				if d, ok := f.intValue("d"); ok {
					return y, i + 1, d, true
				}
			}
		}
	}
	if j, ok := f.intValue("j"); ok {
		t := time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, j-1)
		return t.Year(), int(t.Month()), t.Day(), true
	}
	return 0, 0, 0, false
}

func (f Fields) intValue(key string) (int, bool) {
	switch v := f[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	default:
		return 0, false
	}
}

// Version returns the VERSION keyword when present and well formed.
func (f Fields) Version() (version.Version, bool) {
	switch v := f["VERSION"].(type) {
	case version.Version:
		return v, true
	case string:
		out, err := version.Parse(v)
		return out, err == nil
	default:
		return version.Version{}, false
	}
}

func formatValue(key string, v any) (string, error) {
	kw, known := keywords[key]
	switch t := v.(type) {
	case string:
		if known && len(kw.enum) > 0 && !contains(kw.enum, t) {
			return "", fmt.Errorf("{%s}: %q not one of %v", key, t, kw.enum)
		}
		return t, nil
	case time.Time:
		return t.UTC().Format("20060102"), nil
	case version.Version:
		return t.String(), nil
	case int:
		return formatInt(key, kw, int64(t))
	case int64:
		return formatInt(key, kw, t)
	case int32:
		return formatInt(key, kw, int64(t))
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case fmt.Stringer:
		return t.String(), nil
	case nil:
		return "", fmt.Errorf("{%s}: nil value", key)
	default:
		return fmt.Sprint(t), nil
	}
}

func formatInt(key string, kw keyword, n int64) (string, error) {
	if kw.hex {
		return strconv.FormatInt(n, 16), nil
	}
	if key == "b" {
		if n < 1 || n > 12 {
			return "", fmt.Errorf("{b}: month %d out of range", n)
		}
		return monthAbbr[n-1], nil
	}
	if kw.width > 0 && n >= 0 {
		return fmt.Sprintf("%0*d", kw.width, n), nil
	}
	return strconv.FormatInt(n, 10), nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// ParseKeywords reads whitespace-separated k=v pairs, the form stored in
// process_keywords. Malformed tokens are skipped.
func ParseKeywords(s string) Fields {
	out := Fields{}
	for _, tok := range strings.Fields(s) {
		k, v, ok := strings.Cut(tok, "=")
		if !ok || k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
