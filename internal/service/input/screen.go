package input

import (
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// ScreenBounds: объединение прямоугольников активных мониторов.
type ScreenBounds struct {
	displays []image.Rectangle
}

// DetectScreenBounds опрашивает активные мониторы.
func DetectScreenBounds() (*ScreenBounds, error) {
	n := screenshot.NumActiveDisplays()
	if n <= 0 {
		return nil, fmt.Errorf("%w: no active displays", ErrBackendUnavailable)
	}
	rects := make([]image.Rectangle, 0, n)
	for i := 0; i < n; i++ {
		rects = append(rects, screenshot.GetDisplayBounds(i))
	}
	return NewScreenBounds(rects...), nil
}

func NewScreenBounds(rects ...image.Rectangle) *ScreenBounds {
	return &ScreenBounds{displays: rects}
}

// Contains сообщает, попадает ли точка хотя бы на один монитор.
func (b *ScreenBounds) Contains(x, y int) bool {
	p := image.Pt(x, y)
	for _, r := range b.displays {
		if p.In(r) {
			return true
		}
	}
	return false
}

// Union: общий охватывающий прямоугольник.
func (b *ScreenBounds) Union() image.Rectangle {
	var u image.Rectangle
	for _, r := range b.displays {
		u = u.Union(r)
	}
	return u
}
