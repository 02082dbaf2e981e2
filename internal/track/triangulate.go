package track

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrInsufficientViews is returned when fewer than two calibrated views are
// available for a marker. Triangulation is meaningless from a single ray.
var ErrInsufficientViews = errors.New("triangulation requires at least two views")

// ErrDegenerate is returned when the homogeneous solution has near-zero
// scale, which happens with parallel or otherwise degenerate ray geometry.
// Callers omit the marker for the cycle rather than propagating Inf/NaN.
var ErrDegenerate = errors.New("degenerate triangulation geometry")

// wNormalizationEpsilon bounds the homogeneous scale below which a solution
// is treated as a point at infinity.
const wNormalizationEpsilon = 1e-9

// View is one calibrated 2D observation: a camera's 3x4 projection matrix
// and the pixel the marker was seen at.
type View struct {
	Projection *mat.Dense
	Pixel      [2]float64
}

// Triangulate recovers a world point from two or more calibrated views by
// direct linear transform.
//
// Each view contributes two rows to a homogeneous system A·X = 0, derived
// from x·(P row 3) - (P row 1) and y·(P row 3) - (P row 2). The least-squares
// solution is the right singular vector of A for its smallest singular value,
// normalised by its homogeneous scale W. All views participate; two is the
// minimum, more over-determine the system and average out pixel noise.
func Triangulate(views []View) ([3]float64, error) {
	var world [3]float64
	if len(views) < 2 {
		return world, ErrInsufficientViews
	}

	a := mat.NewDense(2*len(views), 4, nil)
	for i, v := range views {
		x, y := v.Pixel[0], v.Pixel[1]
		for j := 0; j < 4; j++ {
			p0 := v.Projection.At(0, j)
			p1 := v.Projection.At(1, j)
			p2 := v.Projection.At(2, j)
			a.Set(2*i, j, x*p2-p0)
			a.Set(2*i+1, j, y*p2-p1)
		}
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return world, ErrDegenerate
	}
	var v mat.Dense
	svd.VTo(&v)

	// Solution is the column of V associated with the smallest singular
	// value, i.e. the last column.
	_, cols := v.Dims()
	hx := v.At(0, cols-1)
	hy := v.At(1, cols-1)
	hz := v.At(2, cols-1)
	hw := v.At(3, cols-1)

	if math.Abs(hw) < wNormalizationEpsilon {
		return world, ErrDegenerate
	}
	world[0] = hx / hw
	world[1] = hy / hw
	world[2] = hz / hw

	for _, c := range world {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return world, ErrDegenerate
		}
	}
	return world, nil
}
