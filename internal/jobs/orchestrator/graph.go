package orchestrator

import (
	"fmt"
	"strings"

	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
	dperrors "github.com/yungbote/dbprocessing/internal/pkg/errors"
	"github.com/yungbote/dbprocessing/internal/services"
)

// Node is one vertex of the product/process graph. Deps are the names of
// the nodes that must be produced first.
type Node struct {
	Name string
	Deps []string
}

func productNode(id int64) string { return fmt.Sprintf("product:%d", id) }
func processNode(id int64) string { return fmt.Sprintf("process:%d", id) }

// Graph builds the product/process graph of the catalog: a process depends
// on its input products and an output product on its process.
func Graph(dbc dbctx.Context, cat services.CatalogService) ([]Node, error) {
	products, err := cat.ListProducts(dbc)
	if err != nil {
		return nil, err
	}
	procs, err := cat.ListProcesses(dbc)
	if err != nil {
		return nil, err
	}
	links, err := cat.ListProductProcessLinks(dbc)
	if err != nil {
		return nil, err
	}

	nodes := make([]Node, 0, len(products)+len(procs))
	at := map[string]int{}
	add := func(name string) {
		if _, ok := at[name]; !ok {
			at[name] = len(nodes)
			nodes = append(nodes, Node{Name: name})
		}
	}
	for _, p := range products {
		add(productNode(p.ProductID))
	}
	for _, p := range procs {
		add(processNode(p.ProcessID))
		if p.OutputProduct != nil {
			out := productNode(*p.OutputProduct)
			add(out)
			nodes[at[out]].Deps = append(nodes[at[out]].Deps, processNode(p.ProcessID))
		}
	}
	for _, l := range links {
		in, proc := productNode(l.InputProductID), processNode(l.ProcessID)
		add(in)
		add(proc)
		nodes[at[proc]].Deps = append(nodes[at[proc]].Deps, in)
	}
	return nodes, nil
}

// Order returns the node names in dependency order, stable by input order.
// A cycle is reported as ErrCatalogInconsistent naming the nodes on it.
func Order(nodes []Node) ([]string, error) {
	if len(nodes) == 0 {
		return nil, nil
	}
	seen := map[string]bool{}
	for _, n := range nodes {
		name := strings.TrimSpace(n.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: graph node missing name", dperrors.ErrInvalidArgument)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate graph node %q", dperrors.ErrInvalidArgument, name)
		}
		seen[name] = true
	}
	for _, n := range nodes {
		for _, dep := range n.Deps {
			if !seen[dep] {
				return nil, fmt.Errorf("%w: %q depends on unknown %q", dperrors.ErrCatalogInconsistent, n.Name, dep)
			}
		}
	}

	// Kahn topological sort.
	deg := map[string]int{}
	out := map[string][]string{}
	for _, n := range nodes {
		deg[n.Name] = 0
	}
	for _, n := range nodes {
		for _, dep := range n.Deps {
			deg[n.Name]++
			out[dep] = append(out[dep], n.Name)
		}
	}

	order := make([]string, 0, len(nodes))
	added := map[string]bool{}
	for {
		progressed := false
		for _, n := range nodes {
			if added[n.Name] || deg[n.Name] != 0 {
				continue
			}
			added[n.Name] = true
			order = append(order, n.Name)
			for _, next := range out[n.Name] {
				deg[next]--
			}
			progressed = true
		}
		if !progressed {
			break
		}
	}

	if len(order) != len(nodes) {
		var stuck []string
		for _, n := range nodes {
			if !added[n.Name] {
				stuck = append(stuck, n.Name)
			}
		}
		return nil, fmt.Errorf("%w: cycle detected in product graph through %s", dperrors.ErrCatalogInconsistent, strings.Join(stuck, ", "))
	}
	return order, nil
}

// ValidateCatalog fails when the catalog's product/process graph has a cycle.
func ValidateCatalog(dbc dbctx.Context, cat services.CatalogService) error {
	nodes, err := Graph(dbc, cat)
	if err != nil {
		return err
	}
	_, err = Order(nodes)
	return err
}
