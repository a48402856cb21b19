package stimulus

import "github.com/relabs-tech/reach_rig/internal/sample"

// Shape selects the drawing primitive for an element.
type Shape string

const (
	ShapeCircle  Shape = "circle"
	ShapeSquare  Shape = "square"
	ShapeCross   Shape = "cross"
	ShapeMarker  Shape = "marker" // live feedback dot for a sensor position
	ShapeFixCue  Shape = "fixation"
)

// Element is a typed stimulus descriptor consumed by the renderer.
type Element struct {
	Shape    Shape        `json:"shape"`
	Location sample.Point `json:"location"`
	Size     float64      `json:"size"` // radius for circles, half-extent otherwise
	Color    string       `json:"color"`
}

// Zone is a circular pass or fail region.
type Zone struct {
	Center sample.Point `json:"center"`
	Radius float64      `json:"radius"`
}

// Contains reports whether p falls inside the zone.
func (z Zone) Contains(p sample.Point) bool {
	return z.Center.Dist(p) <= z.Radius
}
