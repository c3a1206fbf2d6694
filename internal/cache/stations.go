package cache

import (
	"sync"
	"time"

	"github.com/bbernstein/fuelwatch/backend-go/internal/models"
)

const defaultStationTTL = 2 * time.Hour

// StationCache holds the current catalog snapshot. Every SetStations call
// replaces the whole list and bumps the version; callers must not mutate the
// slice they pass in or get back.
type StationCache struct {
	stations    []models.Station
	lastUpdated time.Time
	version     uint64
	ttl         time.Duration
	clock       clock
	mu          sync.RWMutex
}

func NewStationCache(ttl time.Duration) *StationCache {
	if ttl <= 0 {
		ttl = defaultStationTTL
	}
	return &StationCache{
		stations: make([]models.Station, 0),
		ttl:      ttl,
		clock:    systemClock{},
	}
}

// GetStations returns the snapshot, or nil once it is older than the TTL.
func (c *StationCache) GetStations() []models.Station {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.isExpired() {
		return nil
	}
	return c.stations
}

// Snapshot returns the stations regardless of age, with their version.
func (c *StationCache) Snapshot() ([]models.Station, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stations, c.version
}

func (c *StationCache) SetStations(stations []models.Station) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stations = stations
	c.lastUpdated = c.clock.Now()
	c.version++
	return c.version
}

func (c *StationCache) LastUpdated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdated
}

func (c *StationCache) isExpired() bool {
	return c.version == 0 || c.clock.Now().Sub(c.lastUpdated) > c.ttl
}
