package mmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewrap(t *testing.T) {
	assert.InDelta(t, -10.0, Rewrap(350), 1e-9)
	assert.InDelta(t, 170.0, Rewrap(-190), 1e-9)
	assert.InDelta(t, 0.0, Rewrap(0), 1e-9)
	assert.InDelta(t, -180.0, Rewrap(540), 1e-9)
}

func TestSpatialFieldsRectangle(t *testing.T) {
	extra := map[string]interface{}{}
	err := spatialFields(bounds{North: 89.9, South: 60, East: 40, West: -20}, "EPSG:4326", extra)
	require.NoError(t, err)

	assert.Equal(t, "ENVELOPE(-20,40,89.9,60)", extra["bbox"])
	assert.Equal(t, extra["bbox"], extra["geospatial_bounds"])
	assert.Equal(t, "POLYGON((-20 60,40 60,40 89.9,-20 89.9,-20 60))", extra["polygon_rpt"])
	assert.Equal(t, "EPSG:4326", extra["geographic_extent_rectangle_srsName"])
	assert.Len(t, extra["geohash"], geohashChars)
}

func TestSpatialFieldsPoint(t *testing.T) {
	extra := map[string]interface{}{}
	err := spatialFields(bounds{North: 60, South: 60, East: 5, West: 5}, "", extra)
	require.NoError(t, err)

	assert.Equal(t, "POINT(5 60)", extra["polygon_rpt"])
	assert.Equal(t, "POINT(5 60)", extra["geospatial_bounds"])
	assert.Equal(t, "ENVELOPE(5,5,60,60)", extra["bbox"])
}

func TestSpatialFieldsWholeWorldHasNoBounds(t *testing.T) {
	extra := map[string]interface{}{}
	err := spatialFields(bounds{North: 90, South: -90, East: 180, West: -180}, "", extra)
	require.NoError(t, err)

	assert.Contains(t, extra, "bbox")
	assert.NotContains(t, extra, "geospatial_bounds")
}

func TestSpatialFieldsRewrapsLongitudes(t *testing.T) {
	extra := map[string]interface{}{}
	err := spatialFields(bounds{North: 80, South: 70, East: 355, West: 350}, "", extra)
	require.NoError(t, err)

	assert.Equal(t, -10.0, extra["geographic_extent_rectangle_west"])
	assert.Equal(t, -5.0, extra["geographic_extent_rectangle_east"])
	assert.Equal(t, "ENVELOPE(-10,-5,80,70)", extra["bbox"])
}

func TestSpatialFieldsRejectsBadBounds(t *testing.T) {
	for name, b := range map[string]bounds{
		"north south of south": {North: 50, South: 60, East: 10, West: 0},
		"east west of west":    {North: 60, South: 50, East: 0, West: 10},
		"latitude over pole":   {North: 95, South: 50, East: 10, West: 0},
	} {
		err := spatialFields(b, "", map[string]interface{}{})
		assert.Error(t, err, name)
	}
}
