package vector

import (
	"gonum.org/v1/gonum/floats"
)

// #region axes
// Axis indices of the commitment vector. The dimension count is fixed
// system-wide at kernel construction; four axes is the default layout.
const (
	AxisTransparency = 0
	AxisIntegrity    = 1
	AxisStability    = 2
	AxisRespect      = 3
)

// DefaultDim is the default number of semantic axes.
const DefaultDim = 4

// AxisNames returns the names of the default four-axis layout.
func AxisNames() []string {
	return []string{"transparency", "integrity", "stability", "respect"}
}

// #endregion axes

// #region vector
// Vector is a fixed-length ordered sequence of axis values. All vectors in
// one kernel share the same dimension.
type Vector []float64

// Clone returns an independent copy of v.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// Origin returns the origin axiom vector (all axes at 1.0) of the given
// dimension. Block 1 of the ledger carries this payload.
func Origin(dim int) Vector {
	v := make(Vector, dim)
	for i := range v {
		v[i] = 1.0
	}
	return v
}

// #endregion vector

// #region cosine
// Cosine computes the cosine similarity between a and b. It returns 0.0
// rather than an error when either vector is empty, the lengths differ, or
// either magnitude is zero: a zero score fails every downstream floor check,
// so malformed input rejects naturally instead of raising.
func Cosine(a, b Vector) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0.0
	}
	magA := floats.Norm(a, 2)
	magB := floats.Norm(b, 2)
	if magA == 0 || magB == 0 {
		return 0.0
	}
	return floats.Dot(a, b) / (magA * magB)
}

// #endregion cosine

// #region projection
// DropIndices returns a copy of v with the given indices removed, preserving
// order. Used to exclude immune axes from drift scoring. Indices outside
// [0, len(v)) are ignored.
func DropIndices(v Vector, drop []int) Vector {
	if len(drop) == 0 {
		return v.Clone()
	}
	skip := make(map[int]bool, len(drop))
	for _, i := range drop {
		skip[i] = true
	}
	out := make(Vector, 0, len(v))
	for i, x := range v {
		if !skip[i] {
			out = append(out, x)
		}
	}
	return out
}

// #endregion projection
