package models

// Rect is an inclusive rectangle of grid cells: [StartX, EndX] x [StartY, EndY].
type Rect struct {
	StartX int `json:"startX"`
	StartY int `json:"startY"`
	EndX   int `json:"endX"`
	EndY   int `json:"endY"`
}

// Contains reports whether the cell (x, y) lies inside the rectangle.
func (r Rect) Contains(x, y int) bool {
	return r.StartX <= x && x <= r.EndX && r.StartY <= y && y <= r.EndY
}

// Bounds returns the cells covered by the parcel as an inclusive rectangle.
// Y grows upward, so the parcel extends down from its anchor.
func (l Land) Bounds() Rect {
	return l.PaddedBounds(0)
}

// PaddedBounds grows the parcel's bounds by padding cells on every side.
// A padding of 1 covers every cell that touches the parcel, diagonals included.
func (l Land) PaddedBounds(padding int) Rect {
	return Rect{
		StartX: l.X - padding,
		EndX:   l.X + l.RegionWeight + padding - 1,
		StartY: l.Y - l.RegionWeight - padding + 1,
		EndY:   l.Y + padding,
	}
}

// Contains reports whether the point (x, y) falls inside the parcel's footprint,
// i.e. px <= x < px+w and py-w < y <= py.
func (l Land) Contains(x, y int) bool {
	return l.Bounds().Contains(x, y)
}

// Overlaps reports whether any cell of the parcel lies inside r.
func (l Land) Overlaps(r Rect) bool {
	return l.X+l.RegionWeight-1 >= r.StartX &&
		l.X <= r.EndX &&
		l.Y >= r.StartY &&
		l.Y-l.RegionWeight+1 <= r.EndY
}

// IsAdjacent reports whether other is a different parcel on the same island
// whose footprint intersects l's bounds grown by padding.
func (l Land) IsAdjacent(other Land, padding int) bool {
	if other.TokenID == l.TokenID || other.IslandID != l.IslandID {
		return false
	}
	return other.Overlaps(l.PaddedBounds(padding))
}
