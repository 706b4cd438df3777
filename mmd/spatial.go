package mmd

import (
	"math"
	"strconv"

	"github.com/mmcloughlin/geohash"
	"github.com/pkg/errors"
)

// geohashChars is the precision of the centroid geohash field, roughly
// 150 m cells.
const geohashChars = 7

// Rewrap folds a longitude given on the 0..360 circle back into
// [-180, 180).
func Rewrap(lon float64) float64 {
	m := math.Mod(lon+180, 360)
	if m < 0 {
		m += 360
	}
	return m - 180
}

type bounds struct {
	North, South, East, West float64
}

func (b bounds) validate() error {
	if b.North < b.South {
		return errors.New("northernmost boundary south of southernmost")
	}
	if b.East < b.West {
		return errors.New("easternmost boundary west of westernmost")
	}
	if b.West < -180 || b.East > 180 {
		return errors.New("longitudes outside valid range")
	}
	if b.South < -90 || b.North > 90 {
		return errors.New("latitudes outside valid range")
	}
	return nil
}

func (b bounds) envelope() string {
	return "ENVELOPE(" + fl(b.West) + "," + fl(b.East) + "," + fl(b.North) + "," + fl(b.South) + ")"
}

func (b bounds) wholeWorld() bool {
	return b.West == -180 && b.East == 180 && b.North == 90 && b.South == -90
}

func (b bounds) point() bool {
	return b.North == b.South && b.East == b.West
}

func (b bounds) wkt() string {
	if b.point() {
		return "POINT(" + fl(b.East) + " " + fl(b.North) + ")"
	}
	w, e, n, s := fl(b.West), fl(b.East), fl(b.North), fl(b.South)
	return "POLYGON((" + w + " " + s + "," + e + " " + s + "," + e + " " + n + "," + w + " " + n + "," + w + " " + s + "))"
}

func (b bounds) geohash() string {
	return geohash.EncodeWithPrecision((b.North+b.South)/2, (b.East+b.West)/2, geohashChars)
}

// spatialFields maps a rectangle onto the document's spatial fields:
// the rectangle corners, a bbox ENVELOPE for the bounding box field, a
// WKT shape for the prefix-tree field, and the centroid geohash.
func spatialFields(b bounds, srsName string, extra map[string]interface{}) error {
	if b.East < -180 || b.East > 180 {
		b.East = Rewrap(b.East)
	}
	if b.West < -180 || b.West > 180 {
		b.West = Rewrap(b.West)
	}
	if err := b.validate(); err != nil {
		return err
	}

	extra["geographic_extent_rectangle_north"] = b.North
	extra["geographic_extent_rectangle_south"] = b.South
	extra["geographic_extent_rectangle_east"] = b.East
	extra["geographic_extent_rectangle_west"] = b.West
	if srsName != "" {
		extra["geographic_extent_rectangle_srsName"] = srsName
	}
	extra["bbox"] = b.envelope()
	extra["polygon_rpt"] = b.wkt()
	if b.point() {
		extra["geospatial_bounds"] = b.wkt()
	} else if !b.wholeWorld() {
		extra["geospatial_bounds"] = b.envelope()
	}
	extra["geohash"] = b.geohash()
	return nil
}

func fl(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
