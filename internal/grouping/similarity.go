package grouping

import "math/bits"

// Similarity computes the Hamming similarity percentage between two
// fingerprints, over their common prefix (length = min of the two
// lengths). If the common prefix is empty, ok is false: similarity is
// undefined and the pair must not induce an edge.
func Similarity(a, b []uint32) (pct float64, ok bool) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0, false
	}

	var diffBits int
	for i := 0; i < n; i++ {
		diffBits += bits.OnesCount32(a[i] ^ b[i])
	}

	totalBits := n * 32
	return 100 * (1 - float64(diffBits)/float64(totalBits)), true
}
