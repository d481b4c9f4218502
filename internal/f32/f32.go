// Package f32 contains the small float32 vector kernels used to maintain
// node records.
package f32

// ScalUnitaryTo is
//  for i, v := range x {
//  	dst[i] = alpha * v
//  }
func ScalUnitaryTo(dst []float32, alpha float32, x []float32) {
	for i, v := range x {
		dst[i] = alpha * v
	}
}

// Add is
//  for i, v := range s {
//  	dst[i] += v
//  }
func Add(dst, s []float32) {
	for i, v := range s {
		dst[i] += v
	}
}

// AxpyUnitary is
//  for i, v := range x {
//  	y[i] += alpha * v
//  }
func AxpyUnitary(alpha float32, x, y []float32) {
	for i, v := range x {
		y[i] += alpha * v
	}
}

// Fill is
//  for i := range x {
//  	x[i] = alpha
//  }
func Fill(alpha float32, x []float32) {
	for i := range x {
		x[i] = alpha
	}
}

// ClampNegative is
//  for i, v := range x {
//  	if v < 0 {
//  		x[i] = 0
//  	}
//  }
func ClampNegative(x []float32) {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		}
	}
}

// Sum is
//  var sum float32
//  for i := range x {
//      sum += x[i]
//  }
func Sum(x []float32) float32 {
	var sum float32
	for _, v := range x {
		sum += v
	}
	return sum
}

// Normalize scales src so that it sums to one and writes the result to dst.
// If src does not have a positive total, dst is set to the uniform distribution.
// dst and src may be the same slice.
func Normalize(dst, src []float32) {
	total := Sum(src)
	if total > 0 {
		ScalUnitaryTo(dst, 1.0/total, src)
		return
	}

	Fill(1.0/float32(len(dst)), dst)
}
