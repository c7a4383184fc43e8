package checkin

import (
	"context"
	"database/sql"
	"errors"
	"math"
)

// Geofence is a circular allowed region around the classroom.
type Geofence struct {
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	RadiusMeters float64 `json:"radius_meters"`
}

// GeofenceProvider returns the class's geofence, or nil when distance
// checks are disabled for the class.
type GeofenceProvider interface {
	Geofence(ctx context.Context, classID string) (*Geofence, error)
}

// StaticGeofences is a fixed in-memory provider for dev mode and tests.
type StaticGeofences map[string]Geofence

var _ GeofenceProvider = (StaticGeofences)(nil)

// Geofence returns the configured fence for the class, or nil.
func (s StaticGeofences) Geofence(_ context.Context, classID string) (*Geofence, error) {
	g, ok := s[classID]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

// GeofenceRepository reads geofence config from Postgres.
type GeofenceRepository struct {
	db *sql.DB
}

// NewGeofenceRepository creates a repo.
func NewGeofenceRepository(db *sql.DB) *GeofenceRepository {
	return &GeofenceRepository{db: db}
}

var _ GeofenceProvider = (*GeofenceRepository)(nil)

// Geofence returns the class fence or nil when none is configured.
func (r *GeofenceRepository) Geofence(ctx context.Context, classID string) (*Geofence, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT lat, lng, radius_meters FROM class_geofences WHERE class_id = $1
	`, classID)
	var g Geofence
	err := row.Scan(&g.Lat, &g.Lng, &g.RadiusMeters)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

const earthRadiusMeters = 6371000

// Haversine returns the great-circle distance in meters between two
// latitude/longitude pairs.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) + math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}
