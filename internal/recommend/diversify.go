package recommend

import (
	"math"
	"math/rand/v2"
)

// DefaultDiversity is the share of exploration picks in a diverse list.
const DefaultDiversity = 0.35

// Diversify keeps the top floor(n*(1-fraction)) of ranked as safe picks and
// fills the rest with picks drawn without replacement from the remaining
// pool, weighted by sqrt(score). Safe picks come first, then explore picks in
// draw order. ranked is not modified.
func Diversify(ranked []Scored, n int, fraction float64, rng *rand.Rand) []Scored {
	if n <= 0 || len(ranked) == 0 {
		return []Scored{}
	}
	fraction = clamp01(fraction)
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	// the epsilon keeps 10*(1-0.3) at 7 instead of 6.999...
	nSafe := int(math.Floor(float64(n)*(1-fraction) + 1e-9))
	nSafe = min(nSafe, len(ranked), n)

	out := make([]Scored, 0, n)
	out = append(out, ranked[:nSafe]...)

	pool := append([]Scored(nil), ranked[nSafe:]...)
	if len(pool) == 0 {
		return out
	}

	weights := make([]float64, len(pool))
	for i, s := range pool {
		weights[i] = math.Sqrt(math.Max(s.Score, 0))
	}

	draws := min(n-nSafe, len(pool))
	for range draws {
		i := drawIndex(weights, rng)
		out = append(out, pool[i])

		pool = append(pool[:i], pool[i+1:]...)
		weights = append(weights[:i], weights[i+1:]...)
	}
	return out
}

// drawIndex picks an index with probability proportional to its weight by
// inverting the cumulative sum. All-zero weights draw uniformly.
func drawIndex(weights []float64, rng *rand.Rand) int {
	var total float64
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return rng.IntN(len(weights))
	}

	target := rng.Float64() * total
	var cum float64
	for i, w := range weights {
		cum += w
		if target < cum {
			return i
		}
	}
	// float rounding can leave target == total
	for i := len(weights) - 1; i >= 0; i-- {
		if weights[i] > 0 {
			return i
		}
	}
	return len(weights) - 1
}
