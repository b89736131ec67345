package mfcc

import "math"

// dctMatrix returns the first k rows of the orthonormal DCT-II basis of size n.
func dctMatrix(k, n int) [][]float64 {
	basis := make([][]float64, k)
	for i := 0; i < k; i++ {
		scale := math.Sqrt(2.0 / float64(n))
		if i == 0 {
			scale = math.Sqrt(1.0 / float64(n))
		}
		row := make([]float64, n)
		for j := 0; j < n; j++ {
			row[j] = scale * math.Cos(math.Pi*float64(i)*(2*float64(j)+1)/(2*float64(n)))
		}
		basis[i] = row
	}
	return basis
}
