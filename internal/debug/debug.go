// Package debug shows intermediate pipeline mats in gocv windows.
package debug

import "gocv.io/x/gocv"

// Windows is a fixed set of named windows for inspecting mats across
// a live capture loop. The caller's loop drives WaitKey, so Show
// never blocks.
type Windows struct {
	ws []*gocv.Window
}

// NewWindows opens one window per name.
func NewWindows(names ...string) *Windows {
	d := &Windows{}
	for _, name := range names {
		d.ws = append(d.ws, gocv.NewWindow(name))
	}
	return d
}

// Show displays each mat in its window, by position. Extra mats are
// ignored; empty mats leave their window untouched.
func (d *Windows) Show(ms ...gocv.Mat) {
	for i, m := range ms {
		if i >= len(d.ws) || m.Empty() {
			continue
		}
		d.ws[i].IMShow(m)
	}
}

// Close closes all windows.
func (d *Windows) Close() {
	for _, w := range d.ws {
		w.Close()
	}
}
