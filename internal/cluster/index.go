// Package cluster builds a multi-resolution marker index over a station
// snapshot. Stations are merged greedily per zoom level, from the deepest level
// upwards, in the manner of Mapbox's supercluster, and every level keeps an
// R-tree of node centroids so viewport lookups never scan the whole catalog.
//
// An Index is immutable once built. Rebuild it from a fresh snapshot and swap
// the pointer; never patch it in place.
package cluster

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/rtree"

	"github.com/bbernstein/fuelwatch/backend-go/internal/geo"
	"github.com/bbernstein/fuelwatch/backend-go/internal/models"
)

// ErrClusterNotFound is returned for IDs the index did not produce.
var ErrClusterNotFound = errors.New("cluster not found")

// Options control the merge heuristic. Two nodes merge at zoom z when their
// centroids are within Radius pixels on a 2^z * Extent pixel world.
type Options struct {
	MinZoom   int
	MaxZoom   int
	Radius    float64
	Extent    float64
	MinPoints int
}

const (
	defaultMaxZoom   = 16
	maxSupportedZoom = 24
	defaultRadius    = 40
	defaultExtent    = 512
	defaultMinPoints = 2
)

// DefaultOptions returns the settings used by the map.
func DefaultOptions() Options {
	return Options{
		MinZoom:   0,
		MaxZoom:   defaultMaxZoom,
		Radius:    defaultRadius,
		Extent:    defaultExtent,
		MinPoints: defaultMinPoints,
	}
}

func (o Options) withDefaults() Options {
	if o.MinZoom < 0 {
		o.MinZoom = 0
	}
	if o.MaxZoom <= 0 {
		o.MaxZoom = defaultMaxZoom
	}
	if o.MaxZoom > maxSupportedZoom {
		o.MaxZoom = maxSupportedZoom
	}
	if o.MinZoom > o.MaxZoom {
		o.MinZoom = o.MaxZoom
	}
	if o.Radius <= 0 {
		o.Radius = defaultRadius
	}
	if o.Extent <= 0 {
		o.Extent = defaultExtent
	}
	if o.MinPoints < 2 {
		o.MinPoints = defaultMinPoints
	}
	return o
}

// BuildStats summarises a build. Excluded counts stations with unusable
// coordinates, Duplicates counts repeated IDs after the first occurrence.
type BuildStats struct {
	Input      int
	Indexed    int
	Excluded   int
	Duplicates int
	Clusters   int
	Duration   time.Duration
}

type level struct {
	nodes []node
	tree  *rtree.RTreeG[int32]
}

// Index is the result of Build.
type Index struct {
	opts     Options
	stations []models.Station
	levels   []level // levels[i] holds zoom opts.MinZoom+i
	clusters map[uint64]*clusterInfo
	stats    BuildStats
}

// Build indexes stations for every zoom between opts.MinZoom and opts.MaxZoom.
// At MaxZoom every distinct coordinate is its own node; stations sharing a
// coordinate form a single cluster at every zoom.
func Build(stations []models.Station, opts Options) (*Index, BuildStats) {
	started := time.Now()
	opts = opts.withDefaults()

	idx := &Index{
		opts:     opts,
		levels:   make([]level, opts.MaxZoom-opts.MinZoom+1),
		clusters: make(map[uint64]*clusterInfo),
	}
	stats := BuildStats{Input: len(stations)}

	seen := make(map[string]bool, len(stations))
	for _, s := range stations {
		if !s.Point().Valid() {
			stats.Excluded++
			continue
		}
		if seen[s.ID] {
			stats.Duplicates++
			continue
		}
		seen[s.ID] = true
		idx.stations = append(idx.stations, s)
	}
	stats.Indexed = len(idx.stations)

	idx.levels[opts.MaxZoom-opts.MinZoom] = idx.buildDeepest()
	for z := opts.MaxZoom - 1; z >= opts.MinZoom; z-- {
		idx.levels[z-opts.MinZoom] = idx.merge(z, idx.levels[z+1-opts.MinZoom])
	}

	stats.Clusters = len(idx.clusters)
	stats.Duration = time.Since(started)
	idx.stats = stats

	log.Debug().
		Int("input", stats.Input).
		Int("indexed", stats.Indexed).
		Int("excluded", stats.Excluded).
		Int("duplicates", stats.Duplicates).
		Int("clusters", stats.Clusters).
		Dur("duration", stats.Duration).
		Msg("Built cluster index")

	return idx, stats
}

// buildDeepest creates one node per distinct coordinate at MaxZoom.
func (idx *Index) buildDeepest() level {
	type coord struct{ lat, lon float64 }
	byCoord := make(map[coord]int, len(idx.stations))
	var nodes []node
	var members [][]int32

	for i, s := range idx.stations {
		c := coord{s.Latitude, s.Longitude}
		if at, ok := byCoord[c]; ok {
			nodes[at].add(newLeaf(int32(i), s))
			members[at] = append(members[at], int32(i))
			continue
		}
		byCoord[c] = len(nodes)
		nodes = append(nodes, newLeaf(int32(i), s))
		members = append(members, []int32{int32(i)})
	}

	seq := 0
	for i := range nodes {
		if nodes[i].count == 1 {
			continue
		}
		seq++
		id := clusterID(idx.opts.MaxZoom, seq)
		nodes[i].settle(id)
		idx.clusters[id] = &clusterInfo{zoom: idx.opts.MaxZoom, members: members[i]}
	}
	return newLevel(nodes)
}

// merge clusters the nodes of the level below into the level for zoom.
func (idx *Index) merge(zoom int, below level) level {
	r := idx.opts.Radius / (idx.opts.Extent * math.Pow(2, float64(zoom)))
	visited := make([]bool, len(below.nodes))
	nodes := make([]node, 0, len(below.nodes))
	seq := 0

	for i := range below.nodes {
		if visited[i] {
			continue
		}
		visited[i] = true
		p := below.nodes[i]

		neighbors := below.within(p.x, p.y, r, visited)
		total := p.count
		for _, n := range neighbors {
			total += below.nodes[n].count
		}

		if len(neighbors) == 0 || total < idx.opts.MinPoints {
			nodes = append(nodes, p)
			for _, n := range neighbors {
				visited[n] = true
				nodes = append(nodes, below.nodes[n])
			}
			continue
		}

		seq++
		id := clusterID(zoom, seq)
		c := node{}
		children := make([]int32, 0, len(neighbors)+1)
		c.add(p)
		children = append(children, int32(i))
		for _, n := range neighbors {
			visited[n] = true
			c.add(below.nodes[n])
			children = append(children, n)
		}
		c.settle(id)
		nodes = append(nodes, c)
		idx.clusters[id] = &clusterInfo{zoom: zoom, children: children}
	}
	return newLevel(nodes)
}

func newLevel(nodes []node) level {
	tree := &rtree.RTreeG[int32]{}
	for i, n := range nodes {
		pt := [2]float64{n.lon, n.lat}
		tree.Insert(pt, pt, int32(i))
	}
	return level{nodes: nodes, tree: tree}
}

// within returns the unvisited nodes whose projected centroid lies within r of
// (x, y), in ascending index order.
func (l level) within(x, y, r float64, visited []bool) []int32 {
	minLat, maxLat := geo.UnprojectY(y+r), geo.UnprojectY(y-r)
	if y-r <= 0 {
		maxLat = 90
	}
	if y+r >= 1 {
		minLat = -90
	}
	lo := [2]float64{geo.UnprojectX(x - r), minLat}
	hi := [2]float64{geo.UnprojectX(x + r), maxLat}

	var out []int32
	r2 := r * r
	l.tree.Search(lo, hi, func(_, _ [2]float64, i int32) bool {
		if visited[i] {
			return true
		}
		n := l.nodes[i]
		dx, dy := n.x-x, n.y-y
		if dx*dx+dy*dy <= r2 {
			out = append(out, i)
		}
		return true
	})
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// Query returns the nodes at zoom whose centroid lies inside bbox. Zoom is
// clamped to the indexed range; an invalid bbox yields no nodes.
func (idx *Index) Query(bbox geo.BBox, zoom int) []Node {
	if !bbox.Valid() || len(idx.stations) == 0 {
		return []Node{}
	}
	l := idx.level(zoom)

	var hits []int32
	l.tree.Search(bbox.Min(), bbox.Max(), func(_, _ [2]float64, i int32) bool {
		hits = append(hits, i)
		return true
	})
	sort.Slice(hits, func(a, b int) bool { return hits[a] < hits[b] })

	out := make([]Node, len(hits))
	for i, h := range hits {
		out[i] = idx.toNode(l.nodes[h])
	}
	return out
}

// ExpansionZoom returns the lowest zoom at which the cluster is replaced by two
// or more nodes. Coincident stations never split and report MaxZoom.
func (idx *Index) ExpansionZoom(id uint64) (int, error) {
	info, ok := idx.clusters[id]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrClusterNotFound, id)
	}
	if info.members != nil {
		return idx.opts.MaxZoom, nil
	}
	return info.zoom + 1, nil
}

// Children returns the nodes a cluster splits into at its expansion zoom.
func (idx *Index) Children(id uint64) ([]Node, error) {
	info, ok := idx.clusters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrClusterNotFound, id)
	}
	if info.members != nil {
		out := make([]Node, len(info.members))
		for i, m := range info.members {
			out[i] = Leaf{Station: idx.stations[m]}
		}
		return out, nil
	}
	below := idx.level(info.zoom + 1)
	out := make([]Node, len(info.children))
	for i, c := range info.children {
		out[i] = idx.toNode(below.nodes[c])
	}
	return out, nil
}

// Leaves returns up to limit member stations of a cluster, skipping offset.
// A limit of zero or less returns all remaining members.
func (idx *Index) Leaves(id uint64, limit, offset int) ([]models.Station, error) {
	if _, ok := idx.clusters[id]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrClusterNotFound, id)
	}
	var out []models.Station
	skipped := 0
	idx.collect(id, func(s models.Station) bool {
		if skipped < offset {
			skipped++
			return true
		}
		out = append(out, s)
		return limit <= 0 || len(out) < limit
	})
	return out, nil
}

func (idx *Index) collect(id uint64, fn func(models.Station) bool) bool {
	info := idx.clusters[id]
	for _, m := range info.members {
		if !fn(idx.stations[m]) {
			return false
		}
	}
	if info.members != nil {
		return true
	}
	below := idx.level(info.zoom + 1)
	for _, c := range info.children {
		n := below.nodes[c]
		if n.id == 0 {
			if !fn(idx.stations[n.station]) {
				return false
			}
			continue
		}
		if !idx.collect(n.id, fn) {
			return false
		}
	}
	return true
}

func (idx *Index) level(zoom int) level {
	if zoom < idx.opts.MinZoom {
		zoom = idx.opts.MinZoom
	}
	if zoom > idx.opts.MaxZoom {
		zoom = idx.opts.MaxZoom
	}
	return idx.levels[zoom-idx.opts.MinZoom]
}

func (idx *Index) toNode(n node) Node {
	if n.id == 0 {
		return Leaf{Station: idx.stations[n.station]}
	}
	return Cluster{ID: n.id, Count: n.count, Centroid: geo.Point{Lat: n.lat, Lon: n.lon}}
}

// Len is the number of indexed stations.
func (idx *Index) Len() int { return len(idx.stations) }

func (idx *Index) Options() Options { return idx.opts }

func (idx *Index) Stats() BuildStats { return idx.stats }
