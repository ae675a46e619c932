package classifier

import "github.com/ayusman/signvista/internal/model"

// topTwo returns the index and value of the best class and the value of the
// runner-up. With a single class the runner-up is 0.
func topTwo(probs []float32) (int, float64, float64) {
	best, bestP := model.Argmax(probs)
	second := 0.0
	for i, p := range probs {
		if i != best && float64(p) > second {
			second = float64(p)
		}
	}
	return best, bestP, second
}

// normalizeLandmarks makes an interleaved (x, y) landmark descriptor
// translation and scale invariant: the first landmark becomes the origin and
// values are divided by the largest magnitude.
func normalizeLandmarks(v []float32) []float32 {
	out := make([]float32, len(v))
	if len(v) < 2 {
		copy(out, v)
		return out
	}

	ox, oy := v[0], v[1]
	var maxAbs float32
	for i, x := range v {
		if i%2 == 0 {
			x -= ox
		} else {
			x -= oy
		}
		out[i] = x
		if x < 0 {
			x = -x
		}
		if x > maxAbs {
			maxAbs = x
		}
	}

	if maxAbs == 0 {
		return out
	}
	for i := range out {
		out[i] /= maxAbs
	}
	return out
}
