package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"bikeflow/internal/domain"
)

// Tile is a slippy-map tile address.
type Tile struct {
	Z, X, Y int
}

func (t Tile) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

// TileAt returns the tile containing the point at the given zoom, clamped to
// the edge of the world.
func TileAt(lat, lon float64, zoom int) Tile {
	n := math.Pow(2, float64(zoom))
	latRad := lat * math.Pi / 180.0
	x := int(math.Floor((lon + 180.0) / 360.0 * n))
	y := int(math.Floor((1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0 * n))

	maxTile := int(n) - 1
	return Tile{Z: zoom, X: clamp(x, 0, maxTile), Y: clamp(y, 0, maxTile)}
}

// TileID is TileAt formatted as "z/x/y".
func TileID(lat, lon float64, zoom int) string {
	return TileAt(lat, lon, zoom).String()
}

// ParseTileID parses a "z/x/y" tile ID, rejecting coordinates outside the
// zoom level's grid.
func ParseTileID(tileID string) (Tile, bool) {
	parts := strings.Split(tileID, "/")
	if len(parts) != 3 {
		return Tile{}, false
	}
	var v [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Tile{}, false
		}
		v[i] = n
	}
	t := Tile{Z: v[0], X: v[1], Y: v[2]}
	if t.Z > MaxZoom || t.X >= 1<<t.Z || t.Y >= 1<<t.Z {
		return Tile{}, false
	}
	return t, true
}

// MaxZoom is the deepest tile zoom level accepted.
const MaxZoom = 22

func tileRange(bbox domain.BoundingBox, zoom int) (topLeft, bottomRight Tile) {
	return TileAt(bbox.MaxLat, bbox.MinLon, zoom), TileAt(bbox.MinLat, bbox.MaxLon, zoom)
}

// CountTilesInBBox is len(TilesInBBox(bbox, zoom)) without building the list.
func CountTilesInBBox(bbox domain.BoundingBox, zoom int) int {
	tl, br := tileRange(bbox, zoom)
	if br.X < tl.X || br.Y < tl.Y {
		return 0
	}
	return (br.X - tl.X + 1) * (br.Y - tl.Y + 1)
}

// TilesInBBox returns all tile IDs that intersect the bounding box.
func TilesInBBox(bbox domain.BoundingBox, zoom int) []string {
	topLeft, bottomRight := tileRange(bbox, zoom)

	var tiles []string
	for x := topLeft.X; x <= bottomRight.X; x++ {
		for y := topLeft.Y; y <= bottomRight.Y; y++ {
			tiles = append(tiles, Tile{Z: zoom, X: x, Y: y}.String())
		}
	}
	return tiles
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
