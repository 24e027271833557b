// Package resolve builds a package dependency graph from a set of requested
// roots by walking a worklist of "name@version_spec" keys against a
// registry, using the simplified range policy described on
// npmspec.ResolveVersion: anything that isn't an exact version resolves to
// whatever the registry's "latest" tag currently names.
package resolve

import (
	"context"
	"sync"

	"github.com/plyght/clay-plyght/internal/syncx"
	"github.com/plyght/clay-plyght/pkg/concurrency"
	"github.com/plyght/clay-plyght/pkg/npmspec"
	"github.com/plyght/clay-plyght/pkg/registry"
)

// CircularName is the sentinel name given to a stub ResolvedNode that
// replaces a cycle's closing edge. The installer recognizes and skips it.
const CircularName = "circular"

// ResolvedNode is one package in the resolved graph: its concrete name and
// version, the registry metadata for that version, its ordered children,
// and whether it was requested as a dev-only root.
type ResolvedNode struct {
	Name     string
	Version  string
	Info     *registry.VersionInfo
	Children []*ResolvedNode
	Dev      bool
}

// IsCircular reports whether n is the cycle-break sentinel.
func (n *ResolvedNode) IsCircular() bool { return n != nil && n.Name == CircularName }

var circularStub = &ResolvedNode{Name: CircularName}

// Resolver walks requested PackageSpecs to a full ResolvedNode graph.
type Resolver struct {
	Client  *registry.Client
	Limiter *concurrency.Limiter
}

// NewResolver returns a Resolver using client for metadata lookups, with
// root resolutions bounded by concurrency.DefaultResolutionLimit.
func NewResolver(client *registry.Client) *Resolver {
	return &Resolver{
		Client:  client,
		Limiter: concurrency.NewLimiter(concurrency.DefaultResolutionLimit),
	}
}

// entry is the worklist's resolved-but-not-yet-linked record for one key.
type entry struct {
	name, version string
	info          *registry.VersionInfo
	dev           bool
}

// resolution is the shared, exclusively-written state for one call to
// Resolve. The RegistryResponse cache is shared across every concurrently
// running root task and merged for free since syncx.Map handles its own
// synchronization.
type resolution struct {
	client *registry.Client
	cache  syncx.Map[string, *registry.RegistryResponse]

	mu       sync.Mutex
	resolved map[string]entry
	graph    map[string][]string
}

// Resolve expands roots into ResolvedNode trees, one per root, in the same
// order as roots. Independent roots are resolved concurrently, bounded by
// r.Limiter.
func (r *Resolver) Resolve(ctx context.Context, roots []npmspec.PackageSpec, devRoots map[string]bool) ([]*ResolvedNode, error) {
	res := &resolution{
		client:   r.Client,
		resolved: map[string]entry{},
		graph:    map[string][]string{},
	}

	rootKeys := make([]string, len(roots))
	var wg sync.WaitGroup
	errs := make([]error, len(roots))
	for i, spec := range roots {
		rootKeys[i] = spec.String()
		wg.Add(1)
		go func(i int, spec npmspec.PackageSpec) {
			defer wg.Done()
			if err := r.Limiter.Run(ctx, func() error {
				return res.walk(ctx, spec.Name, spec.VersionSpec, devRoots[spec.Name], map[string]bool{})
			}); err != nil {
				errs[i] = err
			}
		}(i, spec)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	nodes := make([]*ResolvedNode, len(rootKeys))
	built := map[string]*ResolvedNode{}
	for i, key := range rootKeys {
		nodes[i] = res.buildNode(key, map[string]bool{}, built)
	}
	return nodes, nil
}

// walk implements the worklist traversal for a single root's resolution
// stack. stack tracks keys currently on this goroutine's path so a cycle
// back to an in-progress key is skipped rather than infinitely recursed.
func (res *resolution) walk(ctx context.Context, name, versionSpec string, dev bool, stack map[string]bool) error {
	key := name + "@" + versionSpec

	res.mu.Lock()
	_, alreadyResolved := res.resolved[key]
	inStack := stack[key]
	res.mu.Unlock()
	if inStack || alreadyResolved {
		return nil
	}

	info, err := res.responseFor(ctx, name)
	if err != nil {
		return err
	}
	published := make(map[string]bool, len(info.Versions))
	for v := range info.Versions {
		published[v] = true
	}
	version, err := npmspec.ResolveVersion(versionSpec, info.DistTags.Latest, published)
	if err != nil {
		return err
	}
	versionInfo := info.Versions[version]

	res.mu.Lock()
	res.resolved[key] = entry{name: name, version: version, info: &versionInfo, dev: dev}
	res.mu.Unlock()

	stack[key] = true
	defer delete(stack, key)

	var childKeys []string
	for depName, depSpec := range versionInfo.Dependencies {
		childKey := depName + "@" + depSpec
		childKeys = append(childKeys, childKey)
		if err := res.walk(ctx, depName, depSpec, false, stack); err != nil {
			return err
		}
	}

	res.mu.Lock()
	res.graph[key] = childKeys
	res.mu.Unlock()
	return nil
}

// responseFor returns the RegistryResponse for name, fetching and caching
// it on first reference within this resolution.
func (res *resolution) responseFor(ctx context.Context, name string) (*registry.RegistryResponse, error) {
	if cached, ok := res.cache.Load(name); ok {
		return cached, nil
	}
	info, err := res.client.GetInfo(ctx, name)
	if err != nil {
		return nil, err
	}
	actual, _ := res.cache.LoadOrStore(name, info)
	return actual, nil
}

// buildNode performs the second-pass DFS rebuild: visiting re-entrant
// keys (cycles) are replaced by the shared circular-stub node instead of
// recursing again.
func (res *resolution) buildNode(key string, visiting map[string]bool, built map[string]*ResolvedNode) *ResolvedNode {
	if visiting[key] {
		return circularStub
	}
	if node, ok := built[key]; ok {
		return node
	}
	e, ok := res.resolved[key]
	if !ok {
		return circularStub
	}
	visiting[key] = true
	defer delete(visiting, key)

	node := &ResolvedNode{Name: e.name, Version: e.version, Info: e.info, Dev: e.dev}
	built[key] = node
	for _, childKey := range res.graph[key] {
		node.Children = append(node.Children, res.buildNode(childKey, visiting, built))
	}
	return node
}

// CountUnique returns the number of distinct (by name+version) nodes
// reachable from roots, used by the installer to size progress tracking.
func CountUnique(roots []*ResolvedNode) int {
	seen := map[string]bool{}
	var visit func(n *ResolvedNode)
	visit = func(n *ResolvedNode) {
		if n == nil || n.IsCircular() {
			return
		}
		key := n.Name + "@" + n.Version
		if seen[key] {
			return
		}
		seen[key] = true
		for _, c := range n.Children {
			visit(c)
		}
	}
	for _, r := range roots {
		visit(r)
	}
	return len(seen)
}
