package narrative

import (
	"errors"
	"fmt"
	"math"
)

// #region constants

const (
	// DefaultFloorWeight is the raw weight given to transitions missing from the input.
	DefaultFloorWeight = 0.01

	// RowTolerance bounds how far a row sum may drift from 1.
	RowTolerance = 1e-6
)

var (
	ErrNegativeWeight = errors.New("transition weight must be non-negative")
	ErrInvalidRow     = errors.New("transition row is not a probability distribution")
	ErrShapeMismatch  = errors.New("matrix shape does not match alphabet")
)

// #endregion constants

// #region matrix

// Matrix holds P(next | current) over an alphabet as a dense row-major table.
// Matrices are immutable once constructed.
type Matrix struct {
	alphabet *Alphabet
	n        int
	p        []float64
}

// NewMatrix builds a row-stochastic matrix from sparse raw weights.
// Cells missing from weights get floor (DefaultFloorWeight when floor <= 0) so no
// transition is impossible. Each row is then divided by its sum.
func NewMatrix(alpha *Alphabet, weights map[Label]map[Label]float64, floor float64) (*Matrix, error) {
	if alpha == nil || alpha.Len() == 0 {
		return nil, ErrEmptyAlphabet
	}
	if floor <= 0 {
		floor = DefaultFloorWeight
	}
	for from, row := range weights {
		if !alpha.Contains(from) {
			return nil, fmt.Errorf("row %s: %w", from, ErrUnknownLabel)
		}
		for to := range row {
			if !alpha.Contains(to) {
				return nil, fmt.Errorf("cell %s->%s: %w", from, to, ErrUnknownLabel)
			}
		}
	}

	n := alpha.Len()
	raw := make([][]float64, n)
	for i := 0; i < n; i++ {
		raw[i] = make([]float64, n)
		row := weights[alpha.At(i)]
		for j := 0; j < n; j++ {
			w, ok := row[alpha.At(j)]
			if !ok {
				w = floor
			}
			raw[i][j] = w
		}
	}
	return NewMatrixFromRows(alpha, raw)
}

// NewMatrixFromRows builds a matrix from a dense n×n table of raw weights,
// normalizing each row. Negative or non-finite weights are rejected.
func NewMatrixFromRows(alpha *Alphabet, rows [][]float64) (*Matrix, error) {
	if alpha == nil || alpha.Len() == 0 {
		return nil, ErrEmptyAlphabet
	}
	n := alpha.Len()
	if len(rows) != n {
		return nil, fmt.Errorf("%d rows for %d labels: %w", len(rows), n, ErrShapeMismatch)
	}
	m := &Matrix{alphabet: alpha, n: n, p: make([]float64, n*n)}
	for i, row := range rows {
		if len(row) != n {
			return nil, fmt.Errorf("row %s has %d cells: %w", alpha.At(i), len(row), ErrShapeMismatch)
		}
		var sum float64
		for j, w := range row {
			if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
				return nil, fmt.Errorf("cell %s->%s = %v: %w", alpha.At(i), alpha.At(j), w, ErrNegativeWeight)
			}
			sum += w
		}
		if sum <= 0 {
			return nil, fmt.Errorf("row %s sums to zero: %w", alpha.At(i), ErrInvalidRow)
		}
		for j, w := range row {
			m.p[i*n+j] = w / sum
		}
	}
	return m, nil
}

// MatrixFromProbabilities restores an already-normalized table without
// renormalizing it, so persisted matrices reload bit-identically. Rows must
// already be valid distributions.
func MatrixFromProbabilities(alpha *Alphabet, rows [][]float64) (*Matrix, error) {
	if alpha == nil || alpha.Len() == 0 {
		return nil, ErrEmptyAlphabet
	}
	n := alpha.Len()
	if len(rows) != n {
		return nil, fmt.Errorf("%d rows for %d labels: %w", len(rows), n, ErrShapeMismatch)
	}
	m := &Matrix{alphabet: alpha, n: n, p: make([]float64, n*n)}
	for i, row := range rows {
		if len(row) != n {
			return nil, fmt.Errorf("row %s has %d cells: %w", alpha.At(i), len(row), ErrShapeMismatch)
		}
		copy(m.p[i*n:(i+1)*n], row)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Alphabet returns the alphabet the matrix is indexed by.
func (m *Matrix) Alphabet() *Alphabet { return m.alphabet }

// Prob returns P(to | from). Unknown labels have probability 0.
func (m *Matrix) Prob(from, to Label) float64 {
	i, ok := m.alphabet.Index(from)
	if !ok {
		return 0
	}
	j, ok := m.alphabet.Index(to)
	if !ok {
		return 0
	}
	return m.p[i*m.n+j]
}

// Row returns a copy of the distribution for from, in alphabet order.
func (m *Matrix) Row(from Label) ([]float64, bool) {
	i, ok := m.alphabet.Index(from)
	if !ok {
		return nil, false
	}
	return m.RowAt(i), true
}

// RowAt returns a copy of row i.
func (m *Matrix) RowAt(i int) []float64 {
	out := make([]float64, m.n)
	copy(out, m.p[i*m.n:(i+1)*m.n])
	return out
}

// Rows returns a dense copy of the whole table.
func (m *Matrix) Rows() [][]float64 {
	out := make([][]float64, m.n)
	for i := range out {
		out[i] = m.RowAt(i)
	}
	return out
}

// Validate checks that every row is a probability distribution.
func (m *Matrix) Validate() error {
	for i := 0; i < m.n; i++ {
		var sum float64
		for j := 0; j < m.n; j++ {
			v := m.p[i*m.n+j]
			if v < 0 || math.IsNaN(v) {
				return fmt.Errorf("cell %s->%s = %v: %w", m.alphabet.At(i), m.alphabet.At(j), v, ErrNegativeWeight)
			}
			sum += v
		}
		if math.Abs(sum-1) > RowTolerance {
			return fmt.Errorf("row %s sums to %.9f: %w", m.alphabet.At(i), sum, ErrInvalidRow)
		}
	}
	return nil
}

// #endregion matrix
