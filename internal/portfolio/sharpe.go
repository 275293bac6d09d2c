package portfolio

import "math"

// Sharpe is mean excess return over the sample standard deviation. Fewer than
// two observations, or a flat series, yields zero.
func Sharpe(returns []float64, riskFree float64) float64 {
	n := len(returns)
	if n < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r - riskFree
	}
	mean /= float64(n)
	variance := 0.0
	for _, r := range returns {
		d := r - riskFree - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(n-1))
	if std < 1e-12 || math.IsNaN(std) {
		return 0
	}
	return math.Round(mean/std*10000) / 10000
}
