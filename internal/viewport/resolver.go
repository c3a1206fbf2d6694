// Package viewport turns map pan/zoom events into render-ready cluster nodes.
//
// A Resolver owns the current cluster index. Replacing the index is a single
// atomic swap, so a query always runs against one complete build. Every
// resolved view carries a sequence number; renderers call IsCurrent before
// drawing and drop anything a newer request has superseded.
package viewport

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/bbernstein/fuelwatch/backend-go/internal/cache"
	"github.com/bbernstein/fuelwatch/backend-go/internal/cluster"
	"github.com/bbernstein/fuelwatch/backend-go/internal/geo"
	"github.com/bbernstein/fuelwatch/backend-go/internal/models"
)

const defaultCacheSize = 512

// View is what the map currently shows.
type View struct {
	BBox geo.BBox `json:"bbox"`
	Zoom int      `json:"zoom"`
}

// Result is the answer to one Resolve call.
type Result struct {
	View         View           `json:"view"`
	Nodes        []cluster.Node `json:"-"` // shared with the cache, read only
	IndexVersion uint64         `json:"indexVersion"`
	Seq          uint64         `json:"seq"`
}

type cacheKey struct {
	version uint64
	view    View
}

type indexEntry struct {
	index   *cluster.Index
	version uint64
}

type Resolver struct {
	current atomic.Pointer[indexEntry]
	seq     atomic.Uint64
	results *cache.LRU[cacheKey, []cluster.Node]
}

// NewResolver creates a resolver with no index; it resolves every view to no
// nodes until the first Swap.
func NewResolver(cacheSize int) (*Resolver, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	results, err := cache.NewLRU[cacheKey, []cluster.Node](cacheSize, 0)
	if err != nil {
		return nil, fmt.Errorf("creating viewport cache: %w", err)
	}
	r := &Resolver{results: results}
	r.current.Store(&indexEntry{})
	return r, nil
}

// Swap installs a freshly built index and returns its version. Cached results
// of the previous index are dropped.
func (r *Resolver) Swap(idx *cluster.Index) uint64 {
	if idx == nil {
		idx, _ = cluster.Build(nil, cluster.DefaultOptions())
	}
	for {
		old := r.current.Load()
		next := &indexEntry{index: idx, version: old.version + 1}
		if r.current.CompareAndSwap(old, next) {
			r.results.Purge()
			log.Debug().Uint64("index_version", next.version).Int("stations", idx.Len()).Msg("Swapped cluster index")
			return next.version
		}
	}
}

// Index returns the installed index, or nil before the first Swap.
func (r *Resolver) Index() *cluster.Index {
	return r.current.Load().index
}

// Resolve answers a view against the current index. Invalid boxes and an
// empty resolver produce an empty node list.
func (r *Resolver) Resolve(view View) Result {
	seq := r.seq.Add(1)
	entry := r.current.Load()
	result := Result{View: view, IndexVersion: entry.version, Seq: seq, Nodes: []cluster.Node{}}

	if entry.index == nil || !view.BBox.Valid() {
		return result
	}

	key := cacheKey{version: entry.version, view: view}
	if nodes, ok := r.results.Get(key); ok {
		result.Nodes = nodes
		return result
	}

	result.Nodes = entry.index.Query(view.BBox, view.Zoom)
	r.results.Add(key, result.Nodes)
	return result
}

// IsCurrent reports whether result is still the latest answer: no newer view
// has been requested and the index has not been replaced since.
func (r *Resolver) IsCurrent(result Result) bool {
	return result.Seq == r.seq.Load() && result.IndexVersion == r.current.Load().version
}

// ExpansionZoom looks the cluster up in the current index.
func (r *Resolver) ExpansionZoom(id uint64) (int, error) {
	idx := r.Index()
	if idx == nil {
		return 0, fmt.Errorf("%w: %d", cluster.ErrClusterNotFound, id)
	}
	return idx.ExpansionZoom(id)
}

// Children lists the nodes a cluster expands into in the current index.
func (r *Resolver) Children(id uint64) ([]cluster.Node, error) {
	idx := r.Index()
	if idx == nil {
		return nil, fmt.Errorf("%w: %d", cluster.ErrClusterNotFound, id)
	}
	return idx.Children(id)
}

// Leaves pages through the member stations of a cluster in the current index.
func (r *Resolver) Leaves(id uint64, limit, offset int) ([]models.Station, error) {
	idx := r.Index()
	if idx == nil {
		return nil, fmt.Errorf("%w: %d", cluster.ErrClusterNotFound, id)
	}
	return idx.Leaves(id, limit, offset)
}

// CacheStats exposes hit and miss counters of the result cache.
func (r *Resolver) CacheStats() map[string]uint64 {
	return r.results.Stats()
}

// Close drops cached results. The resolver stays usable.
func (r *Resolver) Close() {
	r.results.Purge()
}

// Snap rounds the box outwards to a grid of 2^-precision degrees so that
// small drags map onto the same cached view.
func Snap(view View, precision int) View {
	step := math.Ldexp(1, -precision)
	b := view.BBox
	view.BBox = geo.BBox{
		MinLat: math.Max(-90, math.Floor(b.MinLat/step)*step),
		MinLon: math.Max(-180, math.Floor(b.MinLon/step)*step),
		MaxLat: math.Min(90, math.Ceil(b.MaxLat/step)*step),
		MaxLon: math.Min(180, math.Ceil(b.MaxLon/step)*step),
	}
	return view
}
