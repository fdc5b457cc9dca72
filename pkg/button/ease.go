package button

// EaseOutBounce maps t in [0,1] onto a curve that overshoots to 1 and bounces
// back three times before settling.
func EaseOutBounce(t float64) float64 {
	const n1, d1 = 7.5625, 2.75
	switch {
	case t <= 0:
		return 0
	case t >= 1:
		return 1
	case t < 1/d1:
		return n1 * t * t
	case t < 2/d1:
		t -= 1.5 / d1
		return n1*t*t + 0.75
	case t < 2.5/d1:
		t -= 2.25 / d1
		return n1*t*t + 0.9375
	default:
		t -= 2.625 / d1
		return n1*t*t + 0.984375
	}
}

// Lerp interpolates between a and b.
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
