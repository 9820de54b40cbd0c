// Package version implements the three-part interface.quality.revision
// versions carried by codes, inspectors and files.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// ComponentLimit is the exclusive upper bound each component is expected to
// respect so that Int stays unambiguous.
const ComponentLimit = 1000

// Version is an ordered (interface, quality, revision) triple.
type Version struct {
	Interface int `json:"interface"`
	Quality   int `json:"quality"`
	Revision  int `json:"revision"`
}

func New(interfaceVersion, quality, revision int) Version {
	return Version{Interface: interfaceVersion, Quality: quality, Revision: revision}
}

// Parse reads "i.q.r". Surrounding whitespace and a leading "v" are ignored.
func Parse(s string) (Version, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), "v")
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("version %q: want interface.quality.revision", s)
	}
	var out [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, fmt.Errorf("version %q: component %d: %w", s, i, err)
		}
		if n < 0 {
			return Version{}, fmt.Errorf("version %q: negative component", s)
		}
		out[i] = n
	}
	return Version{Interface: out[0], Quality: out[1], Revision: out[2]}, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Interface, v.Quality, v.Revision)
}

// Int is the catalog's integer form: interface*1000 + quality*100 + revision.
func (v Version) Int() int {
	return v.Interface*1000 + v.Quality*100 + v.Revision
}

// Valid reports whether every component is inside [0, ComponentLimit).
// Callers treat a false result as a warning, not an error.
func (v Version) Valid() bool {
	for _, c := range []int{v.Interface, v.Quality, v.Revision} {
		if c < 0 || c >= ComponentLimit {
			return false
		}
	}
	return true
}

// Compare returns -1, 0 or 1 ordering lexicographically on the triple.
func (v Version) Compare(o Version) int {
	switch {
	case v.Interface != o.Interface:
		return sign(v.Interface - o.Interface)
	case v.Quality != o.Quality:
		return sign(v.Quality - o.Quality)
	default:
		return sign(v.Revision - o.Revision)
	}
}

func (v Version) Less(o Version) bool  { return v.Compare(o) < 0 }
func (v Version) Equal(o Version) bool { return v.Compare(o) == 0 }

// IncInterface bumps interface and zeroes quality and revision.
func (v Version) IncInterface() Version {
	return Version{Interface: v.Interface + 1}
}

// IncQuality bumps quality and zeroes revision.
func (v Version) IncQuality() Version {
	return Version{Interface: v.Interface, Quality: v.Quality + 1}
}

func (v Version) IncRevision() Version {
	return Version{Interface: v.Interface, Quality: v.Quality, Revision: v.Revision + 1}
}

// Delta is a per-component signed difference between two versions.
type Delta struct {
	Interface int
	Quality   int
	Revision  int
}

// Sub returns v - o component-wise.
func (v Version) Sub(o Version) Delta {
	return Delta{
		Interface: v.Interface - o.Interface,
		Quality:   v.Quality - o.Quality,
		Revision:  v.Revision - o.Revision,
	}
}

// Max returns the component-wise maximum of d and o.
func (d Delta) Max(o Delta) Delta {
	return Delta{
		Interface: max(d.Interface, o.Interface),
		Quality:   max(d.Quality, o.Quality),
		Revision:  max(d.Revision, o.Revision),
	}
}

// Leading reports the highest-order positive component: 2 for interface,
// 1 for quality, 0 for revision, -1 when none is positive.
func (d Delta) Leading() int {
	switch {
	case d.Interface > 0:
		return 2
	case d.Quality > 0:
		return 1
	case d.Revision > 0:
		return 0
	default:
		return -1
	}
}

// Bump applies the increment matching d's leading component. ok is false
// when d has no positive component and v is returned unchanged.
func (v Version) Bump(d Delta) (out Version, ok bool) {
	switch d.Leading() {
	case 2:
		return v.IncInterface(), true
	case 1:
		return v.IncQuality(), true
	case 0:
		return v.IncRevision(), true
	default:
		return v, false
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

func (v Version) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

func (v *Version) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
