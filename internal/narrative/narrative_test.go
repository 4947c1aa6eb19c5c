package narrative

import (
	"errors"
	"math"
	"testing"
)

// #region helpers

func abc(t *testing.T) *Alphabet {
	t.Helper()
	a, err := NewAlphabet("A", "B", "C")
	if err != nil {
		t.Fatalf("NewAlphabet: %v", err)
	}
	return a
}

func assertRowsValid(t *testing.T, m *Matrix) {
	t.Helper()
	for i, row := range m.Rows() {
		var sum float64
		for j, v := range row {
			if v < 0 {
				t.Fatalf("row %d col %d negative: %v", i, j, v)
			}
			sum += v
		}
		if math.Abs(sum-1) > 1e-6 {
			t.Fatalf("row %d sums to %v", i, sum)
		}
	}
}

// #endregion helpers

// #region alphabet-tests

func TestNewAlphabet_RejectsDuplicates(t *testing.T) {
	_, err := NewAlphabet("A", "B", "A")
	if !errors.Is(err, ErrDuplicateLabel) {
		t.Fatalf("expected ErrDuplicateLabel, got %v", err)
	}
	if _, err := NewAlphabet(); !errors.Is(err, ErrEmptyAlphabet) {
		t.Fatalf("expected ErrEmptyAlphabet, got %v", err)
	}
}

func TestAlphabetVariants(t *testing.T) {
	if got := ExtendedAlphabet().Len(); got != 11 {
		t.Errorf("extended: got %d labels, want 11", got)
	}
	legacy := LegacyAlphabet()
	if got := legacy.Len(); got != 9 {
		t.Errorf("legacy: got %d labels, want 9", got)
	}
	if legacy.Contains(Revelation) || legacy.Contains(StoryEnd) {
		t.Error("legacy alphabet should not contain Revelation or Story_End")
	}
	if _, err := AlphabetByName("bogus"); err == nil {
		t.Error("expected error for unknown variant")
	}
}

// #endregion alphabet-tests

// #region matrix-tests

func TestNewMatrix_FillsMissingAndNormalizes(t *testing.T) {
	a := abc(t)
	m, err := NewMatrix(a, map[Label]map[Label]float64{
		"A": {"B": 2},
	}, 0)
	if err != nil {
		t.Fatalf("NewMatrix: %v", err)
	}
	assertRowsValid(t, m)

	if m.Prob("A", "A") <= 0 || m.Prob("A", "C") <= 0 {
		t.Error("missing transitions should get a positive floor weight")
	}
	if m.Prob("A", "B") < 0.98 {
		t.Errorf("A->B: got %v, want dominant", m.Prob("A", "B"))
	}
	// untouched rows are uniform
	if math.Abs(m.Prob("C", "A")-1.0/3) > 1e-12 {
		t.Errorf("C->A: got %v, want 1/3", m.Prob("C", "A"))
	}
}

func TestNewMatrix_RejectsNegative(t *testing.T) {
	a := abc(t)
	_, err := NewMatrix(a, map[Label]map[Label]float64{"A": {"B": -0.1}}, 0)
	if !errors.Is(err, ErrNegativeWeight) {
		t.Fatalf("expected ErrNegativeWeight, got %v", err)
	}
	_, err = NewMatrix(a, map[Label]map[Label]float64{"Z": {"B": 1}}, 0)
	if !errors.Is(err, ErrUnknownLabel) {
		t.Fatalf("expected ErrUnknownLabel, got %v", err)
	}
}

func TestNewMatrixFromRows_ShapeMismatch(t *testing.T) {
	a := abc(t)
	_, err := NewMatrixFromRows(a, [][]float64{{1, 1, 1}, {1, 1}})
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestMatrixFromProbabilities_PreservesBits(t *testing.T) {
	a := abc(t)
	rows := [][]float64{{0.1, 0.8, 0.1}, {0.2, 0.2, 0.6}, {1, 0, 0}}
	m, err := MatrixFromProbabilities(a, rows)
	if err != nil {
		t.Fatalf("MatrixFromProbabilities: %v", err)
	}
	for i, row := range m.Rows() {
		for j, v := range row {
			if v != rows[i][j] {
				t.Errorf("cell %d,%d: got %v, want %v", i, j, v, rows[i][j])
			}
		}
	}

	if _, err := MatrixFromProbabilities(a, [][]float64{{0.5, 0.1, 0.1}, {1, 0, 0}, {1, 0, 0}}); !errors.Is(err, ErrInvalidRow) {
		t.Errorf("expected ErrInvalidRow, got %v", err)
	}
}

// #endregion matrix-tests

// #region trajectory-tests

func TestMatrixForPosition_MonotoneBins(t *testing.T) {
	tr, err := DefaultTrajectory(ExtendedAlphabet(), 20)
	if err != nil {
		t.Fatalf("DefaultTrajectory: %v", err)
	}
	for _, total := range []int{1, 7, 15, 20, 33, 100} {
		prev := -1
		for i := 0; i < total; i++ {
			idx := tr.BinIndex(i, total)
			if idx < prev {
				t.Fatalf("total=%d position=%d: bin %d after %d", total, i, idx, prev)
			}
			if idx < 0 || idx >= tr.BinCount() {
				t.Fatalf("total=%d position=%d: bin %d out of range", total, i, idx)
			}
			prev = idx

			m, ok := tr.MatrixForPosition(i, total)
			if !ok {
				t.Fatalf("total=%d position=%d: unexpected fallback", total, i)
			}
			if m != tr.Bin(idx) {
				t.Fatalf("total=%d position=%d: matrix not bin %d", total, i, idx)
			}
			assertRowsValid(t, m)
		}
	}
}

func TestMatrixForPosition_Clamping(t *testing.T) {
	tr, _ := DefaultTrajectory(ExtendedAlphabet(), 20)

	if got := tr.BinIndex(20, 20); got != 19 {
		t.Errorf("position==total: got bin %d, want 19", got)
	}
	if got := tr.BinIndex(-3, 20); got != 0 {
		t.Errorf("negative position: got bin %d, want 0", got)
	}
	m, ok := tr.MatrixForPosition(3, 0)
	if ok {
		t.Error("zero total should report fallback")
	}
	if m != tr.Bin(0) {
		t.Error("fallback should return bin 0")
	}
}

func TestNewTrajectory_RejectsEmptyAndForeignBins(t *testing.T) {
	a := abc(t)
	if _, err := NewTrajectory(a, nil); !errors.Is(err, ErrEmptyTrajectory) {
		t.Fatalf("expected ErrEmptyTrajectory, got %v", err)
	}
	other, _ := NewAlphabet("X", "Y", "Z")
	m, _ := NewMatrix(other, nil, 0)
	if _, err := NewTrajectory(a, []*Matrix{m}); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestDefaultTrajectory_ShapesStory(t *testing.T) {
	tr, err := DefaultTrajectory(ExtendedAlphabet(), 20)
	if err != nil {
		t.Fatalf("DefaultTrajectory: %v", err)
	}
	early := tr.Bin(1)
	late := tr.Bin(18)
	if early.Prob(Introduction, IncitingIncident) <= early.Prob(Introduction, Resolution) {
		t.Error("early bins should favour the inciting incident over resolution")
	}
	if late.Prob(Climax, Resolution) <= late.Prob(Climax, IncitingIncident) {
		t.Error("late bins should favour resolution over the inciting incident")
	}
	for i := 0; i < tr.BinCount(); i++ {
		m := tr.Bin(i)
		if m.Prob(Conflict, Conflict) >= m.Prob(Dialogue, Conflict) {
			t.Errorf("bin %d: self-transition should be damped", i)
		}
	}
}

// #endregion trajectory-tests
