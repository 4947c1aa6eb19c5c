package state

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS model_versions (
	version_id    TEXT PRIMARY KEY,
	parent_id     TEXT,
	alphabet      TEXT NOT NULL,
	bin_count     INTEGER NOT NULL,
	bins          BLOB NOT NULL,
	stats_json    TEXT NOT NULL,
	source        TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES model_versions(version_id)
);

CREATE TABLE IF NOT EXISTS active_model (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES model_versions(version_id)
);

CREATE TABLE IF NOT EXISTS run_log (
	run_id        TEXT PRIMARY KEY,
	variant       TEXT NOT NULL,
	model_version TEXT,
	override_id   TEXT,
	seed          INTEGER NOT NULL,
	length        INTEGER NOT NULL,
	status        TEXT NOT NULL,
	error         TEXT,
	scores_json   TEXT,
	eval_json     TEXT,
	started_at    TEXT NOT NULL,
	finished_at   TEXT
);

CREATE TABLE IF NOT EXISTS step_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	position      INTEGER NOT NULL,
	label         TEXT NOT NULL,
	mode          TEXT NOT NULL,
	text          TEXT NOT NULL,
	confidence    REAL NOT NULL,
	verified      INTEGER NOT NULL,
	retries       INTEGER NOT NULL,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES run_log(run_id)
);
`
// #endregion schema

var (
	// ErrVersionNotFound means no model version has the requested id.
	ErrVersionNotFound = errors.New("model version not found")
	// ErrNoActiveModel means no model has been trained or imported yet.
	ErrNoActiveModel = errors.New("no active model")
)

// #region store-struct
// Store manages versioned models in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// pragmas are per connection
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return NewStoreWithDB(db), nil
}

// NewStoreWithDB wraps an already migrated database.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Migrate creates the schema on db. Tests use it with in-memory databases.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}
// #endregion db-accessor

// #region create-version
// CreateVersion stores m as a new version whose parent is the currently
// active version, and makes it active in the same transaction.
func (s *Store) CreateVersion(m Model, source string) (ModelVersion, error) {
	if m.Trajectory == nil {
		return ModelVersion{}, fmt.Errorf("create version: %w", narrative.ErrEmptyTrajectory)
	}
	alphaJSON, err := json.Marshal(m.Trajectory.Alphabet().Labels())
	if err != nil {
		return ModelVersion{}, fmt.Errorf("marshal alphabet: %w", err)
	}
	statsJSON, err := json.Marshal(m.Stats)
	if err != nil {
		return ModelVersion{}, fmt.Errorf("marshal stats: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return ModelVersion{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var parent sql.NullString
	err = tx.QueryRow(`SELECT version_id FROM active_model WHERE id = 1`).Scan(&parent)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return ModelVersion{}, fmt.Errorf("get active: %w", err)
	}

	rec := ModelVersion{
		VersionID: uuid.New().String(),
		ParentID:  parent.String,
		Source:    source,
		CreatedAt: s.now().UTC(),
		Model:     m,
	}

	var parentPtr interface{}
	if rec.ParentID != "" {
		parentPtr = rec.ParentID
	}
	_, err = tx.Exec(
		`INSERT INTO model_versions (version_id, parent_id, alphabet, bin_count, bins, stats_json, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.VersionID, parentPtr, string(alphaJSON), m.Trajectory.BinCount(), encodeBins(m.Trajectory),
		string(statsJSON), source, rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return ModelVersion{}, fmt.Errorf("insert version: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO active_model (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		rec.VersionID,
	)
	if err != nil {
		return ModelVersion{}, fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ModelVersion{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}
// #endregion create-version

// #region get-current
// GetCurrent reads the active model version.
func (s *Store) GetCurrent() (ModelVersion, error) {
	var versionID string
	err := s.db.QueryRow(`SELECT version_id FROM active_model WHERE id = 1`).Scan(&versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return ModelVersion{}, ErrNoActiveModel
	}
	if err != nil {
		return ModelVersion{}, fmt.Errorf("get active: %w", err)
	}
	return s.GetVersion(versionID)
}
// #endregion get-current

// #region get-version
const versionColumns = `version_id, parent_id, alphabet, bin_count, bins, stats_json, source, created_at`

// GetVersion retrieves a specific model version by ID.
func (s *Store) GetVersion(id string) (ModelVersion, error) {
	row := s.db.QueryRow(`SELECT `+versionColumns+` FROM model_versions WHERE version_id = ?`, id)
	rec, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ModelVersion{}, fmt.Errorf("get version %s: %w", id, ErrVersionNotFound)
	}
	if err != nil {
		return ModelVersion{}, fmt.Errorf("get version %s: %w", id, err)
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (ModelVersion, error) {
	var rec ModelVersion
	var parentID sql.NullString
	var alphaJSON, statsJSON, createdStr string
	var binCount int
	var blob []byte

	if err := row.Scan(&rec.VersionID, &parentID, &alphaJSON, &binCount, &blob, &statsJSON, &rec.Source, &createdStr); err != nil {
		return ModelVersion{}, err
	}
	if parentID.Valid {
		rec.ParentID = parentID.String
	}

	var labels []narrative.Label
	if err := json.Unmarshal([]byte(alphaJSON), &labels); err != nil {
		return ModelVersion{}, fmt.Errorf("unmarshal alphabet: %w", err)
	}
	alpha, err := narrative.NewAlphabet(labels...)
	if err != nil {
		return ModelVersion{}, fmt.Errorf("alphabet: %w", err)
	}
	traj, err := decodeBins(alpha, binCount, blob)
	if err != nil {
		return ModelVersion{}, err
	}
	rec.Model.Trajectory = traj
	if err := json.Unmarshal([]byte(statsJSON), &rec.Model.Stats); err != nil {
		return ModelVersion{}, fmt.Errorf("unmarshal stats: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return rec, nil
}
// #endregion get-version

// #region rollback
// Rollback sets the active pointer to a previous version.
func (s *Store) Rollback(targetVersionID string) error {
	// Verify the target version exists
	var exists int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM model_versions WHERE version_id = ?`, targetVersionID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("version %s: %w", targetVersionID, ErrVersionNotFound)
	}

	_, err = s.db.Exec(
		`INSERT INTO active_model (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		targetVersionID,
	)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}
// #endregion rollback

// #region list-versions
// ListVersions returns the most recent model versions, newest first.
func (s *Store) ListVersions(limit int) ([]ModelVersion, error) {
	rows, err := s.db.Query(
		`SELECT `+versionColumns+` FROM model_versions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var records []ModelVersion
	for rows.Next() {
		rec, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
// #endregion list-versions

// #region bin-encoding
// encodeBins packs every bin row-major as little-endian float64 bits, which
// keeps stored probabilities bit-identical.
func encodeBins(t *narrative.Trajectory) []byte {
	n := t.Alphabet().Len()
	buf := make([]byte, 0, t.BinCount()*n*n*8)
	for b := 0; b < t.BinCount(); b++ {
		m := t.Bin(b)
		for i := 0; i < n; i++ {
			for _, p := range m.RowAt(i) {
				buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(p))
			}
		}
	}
	return buf
}

func decodeBins(alpha *narrative.Alphabet, binCount int, b []byte) (*narrative.Trajectory, error) {
	n := alpha.Len()
	if binCount <= 0 || len(b) != binCount*n*n*8 {
		return nil, fmt.Errorf("decode bins: %d bytes for %d bins of %d labels: %w", len(b), binCount, n, ErrInvalidRecord)
	}
	bins := make([]*narrative.Matrix, binCount)
	off := 0
	for k := range bins {
		rows := make([][]float64, n)
		for i := range rows {
			rows[i] = make([]float64, n)
			for j := range rows[i] {
				rows[i][j] = math.Float64frombits(binary.LittleEndian.Uint64(b[off:]))
				off += 8
			}
		}
		m, err := narrative.MatrixFromProbabilities(alpha, rows)
		if err != nil {
			return nil, fmt.Errorf("decode bin %d: %w", k, err)
		}
		bins[k] = m
	}
	return narrative.NewTrajectory(alpha, bins)
}
// #endregion bin-encoding
