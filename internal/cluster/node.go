package cluster

import (
	"github.com/bbernstein/fuelwatch/backend-go/internal/geo"
	"github.com/bbernstein/fuelwatch/backend-go/internal/models"
)

// Node is either a Leaf or a Cluster.
type Node interface {
	Coordinates() geo.Point
	// Size is the number of stations the node represents.
	Size() int
	isNode()
}

// Leaf wraps exactly one station.
type Leaf struct {
	Station models.Station
}

func (l Leaf) Coordinates() geo.Point { return l.Station.Point() }
func (l Leaf) Size() int              { return 1 }
func (Leaf) isNode()                  {}

// Cluster aggregates two or more stations. Centroid is the mean of the member
// coordinates and ID is stable across builds of the same input.
type Cluster struct {
	ID       uint64    `json:"id"`
	Count    int       `json:"count"`
	Centroid geo.Point `json:"centroid"`
}

func (c Cluster) Coordinates() geo.Point { return c.Centroid }
func (c Cluster) Size() int              { return c.Count }
func (Cluster) isNode()                  {}

// node is the stored form shared by leaves and clusters.
type node struct {
	lat, lon       float64 // centroid
	x, y           float64 // mercator projection of the centroid
	sumLat, sumLon float64
	count          int
	id             uint64 // zero for leaves
	station        int32  // station index for leaves, -1 for clusters
}

type clusterInfo struct {
	zoom int
	// children index the nodes one zoom level deeper.
	children []int32
	// members holds station indices for clusters of coincident stations,
	// which exist at the deepest level and never split.
	members []int32
}

func newLeaf(idx int32, s models.Station) node {
	return node{
		lat:     s.Latitude,
		lon:     s.Longitude,
		x:       geo.MercatorX(s.Longitude),
		y:       geo.MercatorY(s.Latitude),
		sumLat:  s.Latitude,
		sumLon:  s.Longitude,
		count:   1,
		station: idx,
	}
}

func (n *node) add(o node) {
	n.sumLat += o.sumLat
	n.sumLon += o.sumLon
	n.count += o.count
}

func (n *node) settle(id uint64) {
	n.id = id
	n.station = -1
	n.lat = n.sumLat / float64(n.count)
	n.lon = n.sumLon / float64(n.count)
	n.x = geo.MercatorX(n.lon)
	n.y = geo.MercatorY(n.lat)
}

func clusterID(zoom, seq int) uint64 {
	return uint64(zoom)<<32 | uint64(seq)
}
