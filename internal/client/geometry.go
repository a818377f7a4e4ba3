package client

// FrameGeometry computes the frame rect and the client's inner rect
// for a given desired (logical) rect, per spec.md §4.D: if GTK frame
// extents are set, the client already paints its own shadow (CSD), so
// the frame exactly matches the client's content size, offset by the
// top-left inset; otherwise the frame inflates the content by the
// configured border and title metrics and the client sits inset by
// (border, titleHeight).
func FrameGeometry(desired Rect, gtkExtentsSet bool, insets Insets, borderWidth, titleHeight int32) (frame Rect, inner Rect) {
	if gtkExtentsSet {
		frame = Rect{
			X:      desired.X - insets.Left,
			Y:      desired.Y - insets.Top,
			Width:  desired.Width,
			Height: desired.Height,
		}
		inner = Rect{X: 0, Y: 0, Width: desired.Width, Height: desired.Height}
		return frame, inner
	}

	frame = Rect{
		X:      desired.X,
		Y:      desired.Y,
		Width:  desired.Width + uint32(2*borderWidth),
		Height: desired.Height + uint32(titleHeight+borderWidth),
	}
	inner = Rect{
		X:      borderWidth,
		Y:      titleHeight,
		Width:  desired.Width,
		Height: desired.Height,
	}
	return frame, inner
}

// ApplyConfigureRequest updates Desired from a client-originated
// configure request and marks DirtyGeom; it never emits a request
// itself — the flusher batches that (spec.md §4.D).
func (hot *Hot) ApplyConfigureRequest(x, y int32, w, h uint32) {
	hot.Desired = Rect{X: x, Y: y, Width: w, Height: h}
	hot.Dirty |= DirtyGeom
}
