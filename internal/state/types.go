package state

import "time"

// #region model-version
// ModelVersion is one stored model. ParentID is the version that was active
// when this one was created, empty for the first.
type ModelVersion struct {
	VersionID string
	ParentID  string
	Source    string // "train:<corpus>" | "import:<file>"
	CreatedAt time.Time
	Model     Model
}
// #endregion model-version

// #region snapshot
// Snapshot is the model generation runs read. It is never mutated once
// published; a new model replaces the whole snapshot.
type Snapshot struct {
	VersionID string
	Model     Model
}
// #endregion snapshot
