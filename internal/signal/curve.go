package signal

// Point is one anchor of a piecewise-linear response curve.
type Point struct {
	Raw   float64
	Score float64
}

// Curve maps a raw measurement to a 0-100 score by interpolating between
// anchor points. Outside the anchored range the endpoint score holds.
type Curve []Point

// Eval interpolates raw against the curve.
func (c Curve) Eval(raw float64) float64 {
	if len(c) == 0 {
		return 0
	}
	if raw <= c[0].Raw {
		return c[0].Score
	}
	if raw >= c[len(c)-1].Raw {
		return c[len(c)-1].Score
	}
	for i := 0; i < len(c)-1; i++ {
		a, b := c[i], c[i+1]
		if raw < a.Raw || raw > b.Raw {
			continue
		}
		if b.Raw == a.Raw {
			return b.Score
		}
		t := (raw - a.Raw) / (b.Raw - a.Raw)
		return a.Score + t*(b.Score-a.Score)
	}
	return c[len(c)-1].Score
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
