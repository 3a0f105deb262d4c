// Package geo converts the GeoJSON geometries attached to map fields into
// Well-Known Text. Geometries are decoded into orb types first so ring
// handling works on a real geometry model rather than raw nested arrays;
// formatting is done locally because the tabular store expects the
// comma-space point separator ("POINT(2 48)", "POLYGON((0 0, 1 0, ...))").
package geo

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"dssync/internal/demarches"
)

// ErrUnsupported is returned for geometry kinds without a WKT rendering
// (GeometryCollection and anything unknown). Callers record a null WKT with a
// diagnostic instead of failing the row.
var ErrUnsupported = errors.New("geo: unsupported geometry type")

// Parse decodes a GeoJSON geometry into an orb geometry. Polygon rings
// (outer and holes, in multi-polygons too) are closed if the source left the
// last point off.
func Parse(g demarches.Geometry) (orb.Geometry, error) {
	switch g.Type {
	case "Point":
		var c [2]float64
		if err := json.Unmarshal(g.Coordinates, &c); err != nil {
			return nil, fmt.Errorf("geo: point coordinates: %w", err)
		}
		return orb.Point{c[0], c[1]}, nil

	case "LineString":
		pts, err := parseLine(g.Coordinates)
		if err != nil {
			return nil, err
		}
		return orb.LineString(pts), nil

	case "Polygon":
		rings, err := parseRings(g.Coordinates)
		if err != nil {
			return nil, err
		}
		return orb.Polygon(rings), nil

	case "MultiPoint":
		pts, err := parseLine(g.Coordinates)
		if err != nil {
			return nil, err
		}
		return orb.MultiPoint(pts), nil

	case "MultiLineString":
		var raw [][][]float64
		if err := json.Unmarshal(g.Coordinates, &raw); err != nil {
			return nil, fmt.Errorf("geo: multilinestring coordinates: %w", err)
		}
		ms := make(orb.MultiLineString, 0, len(raw))
		for _, line := range raw {
			ms = append(ms, orb.LineString(toPoints(line)))
		}
		return ms, nil

	case "MultiPolygon":
		var raw [][][][]float64
		if err := json.Unmarshal(g.Coordinates, &raw); err != nil {
			return nil, fmt.Errorf("geo: multipolygon coordinates: %w", err)
		}
		mp := make(orb.MultiPolygon, 0, len(raw))
		for _, poly := range raw {
			rings := make(orb.Polygon, 0, len(poly))
			for _, ring := range poly {
				rings = append(rings, closeRing(orb.Ring(toPoints(ring))))
			}
			mp = append(mp, rings)
		}
		return mp, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, g.Type)
	}
}

// AreaWKT renders one geo area's geometry as WKT. Unsupported kinds and
// malformed coordinate payloads return an error; callers degrade to null.
func AreaWKT(g demarches.Geometry) (string, error) {
	geom, err := Parse(g)
	if err != nil {
		return "", err
	}
	return WKT(geom), nil
}

// WKT formats an orb geometry with ", " between points, matching the format
// historically written to the geo_wkt column.
func WKT(geom orb.Geometry) string {
	switch g := geom.(type) {
	case orb.Point:
		return "POINT(" + point(g) + ")"
	case orb.LineString:
		return "LINESTRING(" + points([]orb.Point(g)) + ")"
	case orb.Polygon:
		return "POLYGON(" + rings(g) + ")"
	case orb.MultiPoint:
		parts := make([]string, len(g))
		for i, p := range g {
			parts[i] = "(" + point(p) + ")"
		}
		return "MULTIPOINT(" + strings.Join(parts, ", ") + ")"
	case orb.MultiLineString:
		parts := make([]string, len(g))
		for i, line := range g {
			parts[i] = "(" + points([]orb.Point(line)) + ")"
		}
		return "MULTILINESTRING(" + strings.Join(parts, ", ") + ")"
	case orb.MultiPolygon:
		parts := make([]string, len(g))
		for i, poly := range g {
			parts[i] = "(" + rings(poly) + ")"
		}
		return "MULTIPOLYGON(" + strings.Join(parts, ", ") + ")"
	default:
		return ""
	}
}

func parseLine(raw json.RawMessage) ([]orb.Point, error) {
	var coords [][]float64
	if err := json.Unmarshal(raw, &coords); err != nil {
		return nil, fmt.Errorf("geo: coordinates: %w", err)
	}
	return toPoints(coords), nil
}

func parseRings(raw json.RawMessage) ([]orb.Ring, error) {
	var coords [][][]float64
	if err := json.Unmarshal(raw, &coords); err != nil {
		return nil, fmt.Errorf("geo: polygon coordinates: %w", err)
	}
	rings := make([]orb.Ring, 0, len(coords))
	for _, ring := range coords {
		rings = append(rings, closeRing(orb.Ring(toPoints(ring))))
	}
	return rings, nil
}

func toPoints(coords [][]float64) []orb.Point {
	pts := make([]orb.Point, 0, len(coords))
	for _, c := range coords {
		var p orb.Point
		if len(c) > 0 {
			p[0] = c[0]
		}
		if len(c) > 1 {
			p[1] = c[1]
		}
		pts = append(pts, p)
	}
	return pts
}

// closeRing appends the first point when the source ring is left open.
func closeRing(r orb.Ring) orb.Ring {
	if len(r) >= 2 && !r.Closed() {
		r = append(r, r[0])
	}
	return r
}

func point(p orb.Point) string {
	return coord(p[0]) + " " + coord(p[1])
}

func points(pts []orb.Point) string {
	parts := make([]string, len(pts))
	for i, p := range pts {
		parts[i] = point(p)
	}
	return strings.Join(parts, ", ")
}

func rings(poly orb.Polygon) string {
	parts := make([]string, len(poly))
	for i, ring := range poly {
		parts[i] = "(" + points([]orb.Point(ring)) + ")"
	}
	return strings.Join(parts, ", ")
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
