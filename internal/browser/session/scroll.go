// internal/browser/session/scroll.go
package session

// ScrollMetrics are the raw window and body dimensions read from the page.
type ScrollMetrics struct {
	ScrollX      float64 `json:"scroll_x"`
	ScrollY      float64 `json:"scroll_y"`
	ScrollWidth  float64 `json:"scroll_width"`
	ScrollHeight float64 `json:"scroll_height"`
	InnerWidth   float64 `json:"inner_width"`
	InnerHeight  float64 `json:"inner_height"`
}

// ScrollStatus is how far the page is scrolled. ScrollHeight and ScrollWidth
// are the scrollable ranges; a page that cannot scroll on an axis reports a
// range of 0 and a percentage of 1.
type ScrollStatus struct {
	PercentageY  float64 `json:"percentage_y"`
	ScrollY      float64 `json:"scroll_y"`
	ScrollHeight float64 `json:"scroll_height"`
	PercentageX  float64 `json:"percentage_x"`
	ScrollX      float64 `json:"scroll_x"`
	ScrollWidth  float64 `json:"scroll_width"`
}

// Status derives the scroll status.
func (m ScrollMetrics) Status() ScrollStatus {
	s := ScrollStatus{ScrollX: m.ScrollX, ScrollY: m.ScrollY}
	s.ScrollHeight, s.PercentageY = scrollRange(m.ScrollY, m.ScrollHeight-m.InnerHeight)
	s.ScrollWidth, s.PercentageX = scrollRange(m.ScrollX, m.ScrollWidth-m.InnerWidth)
	return s
}

func scrollRange(pos, span float64) (float64, float64) {
	if span <= 0 {
		return 0, 1.0
	}
	return span, pos / span
}

// Map renders the status as the observation position descriptor.
func (s ScrollStatus) Map() map[string]float64 {
	return map[string]float64{
		"percentage_y":  s.PercentageY,
		"scroll_y":      s.ScrollY,
		"scroll_height": s.ScrollHeight,
		"percentage_x":  s.PercentageX,
		"scroll_x":      s.ScrollX,
		"scroll_width":  s.ScrollWidth,
	}
}
