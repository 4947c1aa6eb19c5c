package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
)

// #region record-constants
const (
	RecordType    = "narrative_trajectory_model"
	RecordVersion = "1.2.0"

	supportedMajor = 1
)

var semverPattern = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)$`)

// ErrInvalidRecord rejects a model file before any part of it is applied.
var ErrInvalidRecord = errors.New("invalid model record")
// #endregion record-constants

// #region model-record
// ModelRecord is the file interchange format for a trained model.
type ModelRecord struct {
	Type     string                 `json:"type"`
	Version  string                 `json:"version"`
	SavedAt  time.Time              `json:"saved_at"`
	Alphabet []narrative.Label      `json:"alphabet"`
	Bins     [][][]float64          `json:"bins"`
	Stats    narrative.DatasetStats `json:"stats"`
}

// Model is a decoded, validated model ready to be swapped in.
type Model struct {
	Trajectory *narrative.Trajectory
	Stats      narrative.DatasetStats
}
// #endregion model-record

// #region encode
// NewRecord captures a model into its interchange form.
func NewRecord(m Model, savedAt time.Time) ModelRecord {
	bins := make([][][]float64, m.Trajectory.BinCount())
	for i := range bins {
		bins[i] = m.Trajectory.Bin(i).Rows()
	}
	return ModelRecord{
		Type:     RecordType,
		Version:  RecordVersion,
		SavedAt:  savedAt.UTC(),
		Alphabet: m.Trajectory.Alphabet().Labels(),
		Bins:     bins,
		Stats:    m.Stats,
	}
}

// Encode serializes a model as indented JSON.
func Encode(m Model, savedAt time.Time) ([]byte, error) {
	data, err := json.MarshalIndent(NewRecord(m, savedAt), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal model record: %w", err)
	}
	return data, nil
}
// #endregion encode

// #region decode
// Decode parses and validates a model record. Nothing is returned unless the
// whole record is valid.
func Decode(data []byte) (Model, error) {
	var rec ModelRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Model{}, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return rec.Model()
}

// Model validates the record and builds the trajectory it describes.
func (r ModelRecord) Model() (Model, error) {
	if r.Type != RecordType {
		return Model{}, fmt.Errorf("%w: type %q, want %q", ErrInvalidRecord, r.Type, RecordType)
	}
	m := semverPattern.FindStringSubmatch(r.Version)
	if m == nil {
		return Model{}, fmt.Errorf("%w: version %q is not semver", ErrInvalidRecord, r.Version)
	}
	if major, _ := strconv.Atoi(m[1]); major != supportedMajor {
		return Model{}, fmt.Errorf("%w: unsupported major version %s", ErrInvalidRecord, r.Version)
	}

	alpha, err := narrative.NewAlphabet(r.Alphabet...)
	if err != nil {
		return Model{}, fmt.Errorf("%w: alphabet: %w", ErrInvalidRecord, err)
	}
	if len(r.Bins) == 0 {
		return Model{}, fmt.Errorf("%w: no bins", ErrInvalidRecord)
	}
	bins := make([]*narrative.Matrix, len(r.Bins))
	for i, rows := range r.Bins {
		mat, err := narrative.MatrixFromProbabilities(alpha, rows)
		if err != nil {
			return Model{}, fmt.Errorf("%w: bin %d: %w", ErrInvalidRecord, i, err)
		}
		bins[i] = mat
	}
	traj, err := narrative.NewTrajectory(alpha, bins)
	if err != nil {
		return Model{}, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	for _, p := range r.Stats.Paths {
		for _, l := range p.Sequence {
			if !alpha.Contains(l) {
				return Model{}, fmt.Errorf("%w: path %s uses unknown label %q", ErrInvalidRecord, p.ID, l)
			}
		}
	}
	return Model{Trajectory: traj, Stats: r.Stats}, nil
}
// #endregion decode

// #region files
// SaveFile writes the model to path through a temporary file and rename, so
// readers never observe a partial file.
func SaveFile(path string, m Model, savedAt time.Time) error {
	data, err := Encode(m, savedAt)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// LoadFile reads and validates a model file.
func LoadFile(path string) (Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Model{}, fmt.Errorf("read model file: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return Model{}, fmt.Errorf("%w: empty file", ErrInvalidRecord)
	}
	return Decode(data)
}
// #endregion files
