// Package station ranks catalog stations by distance and answers lookups
// against the current snapshot.
package station

import "github.com/bbernstein/fuelwatch/backend-go/internal/models"

// SnapshotProvider supplies the current catalog snapshot and its version.
// Version zero means nothing has been loaded yet.
type SnapshotProvider interface {
	Snapshot() ([]models.Station, uint64)
}
