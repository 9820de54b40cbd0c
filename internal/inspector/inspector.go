package inspector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/yungbote/dbprocessing/internal/diskfile"
	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
	dperrors "github.com/yungbote/dbprocessing/internal/pkg/errors"
	"github.com/yungbote/dbprocessing/internal/services"
)

// Request is one candidate file offered to one inspector.
type Request struct {
	Path      string
	ProductID int64
	Args      Args
	Catalog   services.CatalogService
	DBC       dbctx.Context
}

// Inspector decides whether a candidate belongs to its product. It returns
// nil params to pass.
type Inspector interface {
	Inspect(ctx context.Context, req Request) (*diskfile.Params, error)
}

// Func adapts a function to Inspector.
type Func func(ctx context.Context, req Request) (*diskfile.Params, error)

func (f Func) Inspect(ctx context.Context, req Request) (*diskfile.Params, error) {
	return f(ctx, req)
}

// Args are the inspector's stored k=v arguments.
type Args map[string]string

func (a Args) Get(key, def string) string {
	if v, ok := a[key]; ok {
		return v
	}
	return def
}

// ParseArgs splits s on whitespace into k=v pairs.
func ParseArgs(s string) (Args, error) {
	out := Args{}
	for _, tok := range strings.Fields(s) {
		k, v, ok := strings.Cut(tok, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: argument %q is not k=v", dperrors.ErrInvalidArgument, tok)
		}
		out[k] = v
	}
	return out, nil
}

// Registry holds the built-in inspectors by name.
type Registry struct {
	mu       sync.RWMutex
	builtins map[string]Inspector
}

func NewRegistry() *Registry {
	r := &Registry{builtins: map[string]Inspector{}}
	r.Register(TemplateName, Template())
	return r
}

func (r *Registry) Register(name string, insp Inspector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builtins[name] = insp
}

func (r *Registry) Lookup(name string) (Inspector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	insp, ok := r.builtins[name]
	return insp, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.builtins))
	for k := range r.builtins {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
