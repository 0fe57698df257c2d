package strategy

import "math"

// SMA returns the rolling simple moving average of values. Positions before
// the window is filled are NaN.
func SMA(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if window <= 0 || i < window-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = mean(values[i-window+1 : i+1])
	}
	return out
}

// RollingStdDev returns the rolling sample standard deviation (n-1
// denominator) of values. Positions before the window is filled are NaN.
func RollingStdDev(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if window < 2 || i < window-1 {
			out[i] = math.NaN()
			continue
		}
		seg := values[i-window+1 : i+1]
		m := mean(seg)
		var sq float64
		for _, v := range seg {
			d := v - m
			sq += d * d
		}
		out[i] = math.Sqrt(sq / float64(window-1))
	}
	return out
}

// mean sums the window from scratch, so equal windows give identical averages.
func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
