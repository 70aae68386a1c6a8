package domain

// Coordinate origins a bounding box may be expressed in. Layout parsers
// emit PDF-space boxes with the origin at the bottom-left; image space puts
// it at the top-left.
const (
	CoordOriginTopLeft    = "TOPLEFT"
	CoordOriginBottomLeft = "BOTTOMLEFT"
)

// BoundingBox is a rectangular region on a page.
type BoundingBox struct {
	L           float64 `json:"l"`
	T           float64 `json:"t"`
	R           float64 `json:"r"`
	B           float64 `json:"b"`
	CoordOrigin string  `json:"coord_origin,omitempty"`
}

// Normalized converts the box to top-left origin with T < B, using the page
// height for the vertical flip when the source origin is bottom-left. An
// empty origin is treated as bottom-left, matching the layout parser's
// default. The receiver is not modified.
func (b BoundingBox) Normalized(pageHeight float64) BoundingBox {
	out := BoundingBox{L: b.L, T: b.T, R: b.R, B: b.B, CoordOrigin: CoordOriginTopLeft}

	origin := b.CoordOrigin
	if origin == "" {
		origin = CoordOriginBottomLeft
	}
	if origin == CoordOriginBottomLeft {
		// In bottom-left space "t" is the edge furthest from the bottom.
		out.T = pageHeight - b.T
		out.B = pageHeight - b.B
	}

	if out.L > out.R {
		out.L, out.R = out.R, out.L
	}
	if out.T > out.B {
		out.T, out.B = out.B, out.T
	}
	return out
}

// Width and Height are only meaningful on a normalized box.
func (b BoundingBox) Width() float64  { return b.R - b.L }
func (b BoundingBox) Height() float64 { return b.B - b.T }

func (b *BoundingBox) asMap() map[string]any {
	m := map[string]any{"l": b.L, "t": b.T, "r": b.R, "b": b.B}
	if b.CoordOrigin != "" {
		m["coord_origin"] = b.CoordOrigin
	}
	return m
}

// BBoxFromMap rebuilds a bounding box from the flat metadata map stored in
// the index. Returns false when the value is absent or malformed.
func BBoxFromMap(v any) (BoundingBox, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return BoundingBox{}, false
	}
	coord := func(key string) (float64, bool) {
		switch n := m[key].(type) {
		case float64:
			return n, true
		case int:
			return float64(n), true
		}
		return 0, false
	}
	var b BoundingBox
	var okL, okT, okR, okB bool
	b.L, okL = coord("l")
	b.T, okT = coord("t")
	b.R, okR = coord("r")
	b.B, okB = coord("b")
	if !okL || !okT || !okR || !okB {
		return BoundingBox{}, false
	}
	if origin, ok := m["coord_origin"].(string); ok {
		b.CoordOrigin = origin
	}
	return b, true
}
