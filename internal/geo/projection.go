package geo

import (
	"fmt"
	"math"

	"bikeflow/internal/domain"
)

// TileSize is the pixel size of one vector tile at integer zoom.
const TileSize = 512

// Projector converts geographic coordinates to screen pixels.
type Projector interface {
	Project(lon, lat float64) (x, y float64)
}

// Viewport is a Web Mercator view of the map, centered on CenterLon/CenterLat.
// Projected coordinates are relative to the top-left corner.
type Viewport struct {
	CenterLon float64
	CenterLat float64
	Zoom      float64
	Width     float64
	Height    float64
}

func (v Viewport) Validate() error {
	if v.Width <= 0 || v.Height <= 0 {
		return fmt.Errorf("viewport size must be positive, got %vx%v", v.Width, v.Height)
	}
	if v.Zoom < 0 || v.Zoom > 24 {
		return fmt.Errorf("zoom %v outside [0, 24]", v.Zoom)
	}
	if v.CenterLat < -85.05112878 || v.CenterLat > 85.05112878 || v.CenterLon < -180 || v.CenterLon > 180 {
		return fmt.Errorf("center %v,%v outside Web Mercator bounds", v.CenterLon, v.CenterLat)
	}
	return nil
}

func (v Viewport) worldSize() float64 {
	return TileSize * math.Pow(2, v.Zoom)
}

// Project implements Projector.
func (v Viewport) Project(lon, lat float64) (x, y float64) {
	ws := v.worldSize()
	wx, wy := mercator(lon, lat, ws)
	cx, cy := mercator(v.CenterLon, v.CenterLat, ws)
	return wx - cx + v.Width/2, wy - cy + v.Height/2
}

// Unproject is the inverse of Project.
func (v Viewport) Unproject(x, y float64) (lon, lat float64) {
	ws := v.worldSize()
	cx, cy := mercator(v.CenterLon, v.CenterLat, ws)
	wx := x + cx - v.Width/2
	wy := y + cy - v.Height/2
	lon = wx/ws*360 - 180
	lat = math.Atan(math.Sinh(math.Pi*(1-2*wy/ws))) * 180 / math.Pi
	return lon, lat
}

// Bounds returns the geographic rectangle covered by the viewport.
func (v Viewport) Bounds() domain.BoundingBox {
	west, north := v.Unproject(0, 0)
	east, south := v.Unproject(v.Width, v.Height)
	return domain.BoundingBox{
		MinLat: south,
		MaxLat: north,
		MinLon: west,
		MaxLon: east,
	}
}

func mercator(lon, lat, worldSize float64) (x, y float64) {
	latRad := lat * math.Pi / 180
	x = (lon + 180) / 360 * worldSize
	y = (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * worldSize
	return x, y
}
