// Package geofence tests whether a coordinate lies inside a polygon.
//
// Coordinates are treated as a planar (latitude, longitude) pair. That is fine at classroom and
// campus scale but not near the poles or across the antimeridian.
package geofence

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// MinVertices is the smallest number of vertices a polygon can have.
const MinVertices = 3

// edgeTolerance absorbs float noise when deciding whether a point sits on an edge.
const edgeTolerance = 1e-12

var ErrMalformed = errors.New("geofence must have at least 3 valid vertices")

// Point is a (latitude, longitude) pair. It is encoded in JSON as [lat, lng].
type Point struct {
	Lat float64
	Lng float64
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.Lat, p.Lng})
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("point must be a [latitude, longitude] pair, got %d values", len(pair))
	}
	p.Lat, p.Lng = pair[0], pair[1]
	return nil
}

func (p Point) valid() bool {
	return !math.IsNaN(p.Lat) && !math.IsNaN(p.Lng) &&
		!math.IsInf(p.Lat, 0) && !math.IsInf(p.Lng, 0) &&
		p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Geofence is a simple polygon. Vertices are never modified once the Geofence is built,
// so a Geofence can be read from many goroutines.
type Geofence struct {
	vertices []Point
}

// New validates and copies `vertices` into a Geofence.
func New(vertices []Point) (Geofence, error) {
	g := Geofence{vertices: append([]Point(nil), vertices...)}
	if err := g.Validate(); err != nil {
		return Geofence{}, err
	}
	return g, nil
}

// MustNew is like New but panics on a malformed polygon. Meant for fixtures.
func MustNew(vertices ...Point) Geofence {
	g, err := New(vertices)
	if err != nil {
		panic(err)
	}
	return g
}

func (g Geofence) Validate() error {
	if len(g.vertices) < MinVertices {
		return ErrMalformed
	}
	for _, v := range g.vertices {
		if !v.valid() {
			return ErrMalformed
		}
	}
	return nil
}

// Vertices returns a copy of the polygon vertices.
func (g Geofence) Vertices() []Point {
	return append([]Point(nil), g.vertices...)
}

func (g Geofence) Len() int { return len(g.vertices) }

// Contains reports whether p lies inside the polygon using even-odd ray casting.
// Points exactly on an edge or a vertex count as inside.
func (g Geofence) Contains(p Point) bool {
	n := len(g.vertices)
	if n < MinVertices {
		return false
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := g.vertices[i], g.vertices[j]
		if onSegment(p, a, b) {
			return true
		}
		// cast a ray towards increasing latitude along p.Lng
		if (a.Lng > p.Lng) != (b.Lng > p.Lng) {
			crossLat := (b.Lat-a.Lat)*(p.Lng-a.Lng)/(b.Lng-a.Lng) + a.Lat
			if p.Lat < crossLat {
				inside = !inside
			}
		}
	}
	return inside
}

func onSegment(p, a, b Point) bool {
	cross := (b.Lat-a.Lat)*(p.Lng-a.Lng) - (b.Lng-a.Lng)*(p.Lat-a.Lat)
	if math.Abs(cross) > edgeTolerance {
		return false
	}
	return p.Lat >= math.Min(a.Lat, b.Lat)-edgeTolerance && p.Lat <= math.Max(a.Lat, b.Lat)+edgeTolerance &&
		p.Lng >= math.Min(a.Lng, b.Lng)-edgeTolerance && p.Lng <= math.Max(a.Lng, b.Lng)+edgeTolerance
}

func (g Geofence) MarshalJSON() ([]byte, error) {
	if g.vertices == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(g.vertices)
}

// UnmarshalJSON decodes [[lat, lng], ...] without validating; call Validate afterwards.
func (g *Geofence) UnmarshalJSON(data []byte) error {
	var vertices []Point
	if err := json.Unmarshal(data, &vertices); err != nil {
		return err
	}
	g.vertices = vertices
	return nil
}
