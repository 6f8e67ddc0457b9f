package vector

import (
	"fmt"
	"math"
)

// Matrix is a sparse matrix in compressed sparse row form. Row i owns
// Indices[IndPtr[i]:IndPtr[i+1]] and the matching Data entries; column
// indices within a row are strictly ascending.
type Matrix struct {
	Rows    int       `json:"rows"`
	Cols    int       `json:"cols"`
	IndPtr  []int     `json:"indptr"`
	Indices []int     `json:"indices"`
	Data    []float64 `json:"data"`
}

// Vector is a read-only view of one sparse row.
type Vector struct {
	Indices []int
	Data    []float64
}

// Row returns a view of row i.
func (m *Matrix) Row(i int) Vector {
	lo, hi := m.IndPtr[i], m.IndPtr[i+1]
	return Vector{Indices: m.Indices[lo:hi], Data: m.Data[lo:hi]}
}

// NNZ returns the number of stored entries.
func (m *Matrix) NNZ() int {
	return len(m.Data)
}

// Validate checks the structural consistency of the CSR arrays.
func (m *Matrix) Validate() error {
	if m.Rows < 0 || m.Cols < 0 {
		return fmt.Errorf("negative matrix shape %dx%d", m.Rows, m.Cols)
	}
	if len(m.IndPtr) != m.Rows+1 {
		return fmt.Errorf("indptr length %d, want %d", len(m.IndPtr), m.Rows+1)
	}
	if len(m.Indices) != len(m.Data) {
		return fmt.Errorf("%d indices but %d values", len(m.Indices), len(m.Data))
	}
	if m.IndPtr[0] != 0 || m.IndPtr[m.Rows] != len(m.Data) {
		return fmt.Errorf("indptr bounds [%d, %d] do not cover %d values", m.IndPtr[0], m.IndPtr[m.Rows], len(m.Data))
	}
	for i := 0; i < m.Rows; i++ {
		lo, hi := m.IndPtr[i], m.IndPtr[i+1]
		if lo > hi {
			return fmt.Errorf("row %d has decreasing indptr", i)
		}
		for k := lo; k < hi; k++ {
			c := m.Indices[k]
			if c < 0 || c >= m.Cols {
				return fmt.Errorf("row %d column %d out of range", i, c)
			}
			if k > lo && m.Indices[k-1] >= c {
				return fmt.Errorf("row %d columns not ascending", i)
			}
			if math.IsNaN(m.Data[k]) || math.IsInf(m.Data[k], 0) {
				return fmt.Errorf("row %d has non-finite value", i)
			}
		}
	}
	return nil
}

// Norm returns the Euclidean length of v.
func (v Vector) Norm() float64 {
	var s float64
	for _, x := range v.Data {
		s += x * x
	}
	return math.Sqrt(s)
}

// Dot returns the inner product of two sparse vectors.
func Dot(a, b Vector) float64 {
	var s float64
	i, j := 0, 0
	for i < len(a.Indices) && j < len(b.Indices) {
		switch {
		case a.Indices[i] == b.Indices[j]:
			s += a.Data[i] * b.Data[j]
			i++
			j++
		case a.Indices[i] < b.Indices[j]:
			i++
		default:
			j++
		}
	}
	return s
}

// Cosine returns dot(a, b) / (|a| |b|), or 0 when either vector is zero.
func Cosine(a, b Vector) float64 {
	na, nb := a.Norm(), b.Norm()
	if na == 0 || nb == 0 {
		return 0
	}
	return Dot(a, b) / (na * nb)
}

// Norms returns the Euclidean length of every row.
func (m *Matrix) Norms() []float64 {
	norms := make([]float64, m.Rows)
	for i := range norms {
		norms[i] = m.Row(i).Norm()
	}
	return norms
}

// CosineAll scores row q against every row. norms must come from Norms.
// Rows with zero length score 0.
func (m *Matrix) CosineAll(q int, norms []float64) []float64 {
	scores := make([]float64, m.Rows)
	nq := norms[q]
	if nq == 0 {
		return scores
	}
	dense := make([]float64, m.Cols)
	query := m.Row(q)
	for k, c := range query.Indices {
		dense[c] = query.Data[k]
	}
	for i := 0; i < m.Rows; i++ {
		if norms[i] == 0 {
			continue
		}
		var dot float64
		for k := m.IndPtr[i]; k < m.IndPtr[i+1]; k++ {
			dot += m.Data[k] * dense[m.Indices[k]]
		}
		scores[i] = dot / (nq * norms[i])
	}
	return scores
}

type builder struct {
	m *Matrix
}

func newBuilder(cols int) *builder {
	return &builder{m: &Matrix{Cols: cols, IndPtr: []int{0}, Indices: []int{}, Data: []float64{}}}
}

func (b *builder) appendRow(cols []int, vals []float64) {
	b.m.Indices = append(b.m.Indices, cols...)
	b.m.Data = append(b.m.Data, vals...)
	b.m.IndPtr = append(b.m.IndPtr, len(b.m.Data))
	b.m.Rows++
}

func (b *builder) matrix() *Matrix {
	return b.m
}
