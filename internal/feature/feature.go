// Package feature models geospatial features and the per-feature changes the
// backend reports between two refs.
package feature

import (
	"reflect"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// GeometryField is the pseudo attribute name used for the geometry column.
const GeometryField = "geometry"

// Feature is one geometric+attribute record within a dataset.
// Geometry is nil for features of non-spatial datasets.
type Feature struct {
	Geometry   orb.Geometry
	Properties geojson.Properties
}

// FromGeoJSON copies a decoded GeoJSON feature. The feature id is not kept;
// callers own the identity of the record.
func FromGeoJSON(gf *geojson.Feature) Feature {
	if gf == nil {
		return Feature{Properties: geojson.Properties{}}
	}
	return Feature{
		Geometry:   gf.Geometry,
		Properties: cloneProperties(gf.Properties),
	}
}

// GeoJSON renders the feature as a GeoJSON feature carrying the given id.
func (f Feature) GeoJSON(id string) *geojson.Feature {
	gf := geojson.NewFeature(f.Geometry)
	if id != "" {
		gf.ID = id
	}
	gf.Properties = cloneProperties(f.Properties)
	return gf
}

// Clone returns a copy whose property map can be mutated independently.
func (f Feature) Clone() Feature {
	return Feature{
		Geometry:   f.Geometry,
		Properties: cloneProperties(f.Properties),
	}
}

// Names returns the property names in sorted order.
func (f Feature) Names() []string {
	names := make([]string, 0, len(f.Properties))
	for name := range f.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Value returns a property value, or the geometry for GeometryField.
func (f Feature) Value(name string) (any, bool) {
	if name == GeometryField {
		return f.Geometry, f.Geometry != nil
	}
	v, ok := f.Properties[name]
	return v, ok
}

// Equal reports whether both features carry the same geometry and properties.
func (f Feature) Equal(other Feature) bool {
	if !GeometryEqual(f.Geometry, other.Geometry) {
		return false
	}
	if len(f.Properties) != len(other.Properties) {
		return false
	}
	for k, v := range f.Properties {
		ov, ok := other.Properties[k]
		if !ok || !ValuesEqual(v, ov) {
			return false
		}
	}
	return true
}

// GeometryEqual compares geometries, treating two missing geometries as equal.
func GeometryEqual(a, b orb.Geometry) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return orb.Equal(a, b)
}

// ValuesEqual compares two attribute values as decoded from JSON.
func ValuesEqual(a, b any) bool {
	ga, aIsGeom := a.(orb.Geometry)
	gb, bIsGeom := b.(orb.Geometry)
	if aIsGeom || bIsGeom {
		return aIsGeom && bIsGeom && GeometryEqual(ga, gb)
	}
	return reflect.DeepEqual(a, b)
}

func cloneProperties(props geojson.Properties) geojson.Properties {
	out := make(geojson.Properties, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
