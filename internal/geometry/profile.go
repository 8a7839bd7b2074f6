package geometry

import "sort"

type piece struct {
	top, bottom, area float64
}

// profile is a piecewise-constant cross-sectional area starting at 0. The
// last piece extends to infinity.
type profile []piece

func (p profile) areaAt(md float64) float64 {
	if len(p) == 0 {
		return 0
	}
	i := sort.Search(len(p), func(i int) bool { return p[i].bottom > md })
	if i == len(p) {
		i = len(p) - 1
	}
	return p[i].area
}

func (p profile) volume(top, bottom float64) float64 {
	if bottom <= top || len(p) == 0 {
		return 0
	}
	var v float64
	for i, pc := range p {
		hi := pc.bottom
		if i == len(p)-1 && bottom > hi {
			hi = bottom
		}
		lo := pc.top
		if lo < top {
			lo = top
		}
		if hi > bottom {
			hi = bottom
		}
		if hi > lo {
			v += pc.area * (hi - lo)
		}
		if pc.bottom >= bottom {
			break
		}
	}
	return v
}

// lengthFor walks down from `from` until `volume` has been enclosed. Zero
// area pieces are skipped over; past the end the last non-zero area is used.
func (p profile) lengthFor(from, volume float64) float64 {
	if volume <= 0 || len(p) == 0 {
		return 0
	}
	remaining := volume
	pos := from
	var lastArea float64
	for i, pc := range p {
		if pc.bottom <= pos && i < len(p)-1 {
			continue
		}
		if pc.area > 0 {
			lastArea = pc.area
		}
		if i == len(p)-1 {
			break
		}
		span := pc.bottom - pos
		held := pc.area * span
		if held >= remaining && pc.area > 0 {
			return pos + remaining/pc.area - from
		}
		remaining -= held
		pos = pc.bottom
	}
	last := p[len(p)-1].area
	if last > 0 {
		lastArea = last
	}
	if lastArea <= 0 {
		return pos - from
	}
	return pos + remaining/lastArea - from
}
