package state

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/pkg/metrics"
)

// #region holder
// Holder publishes the active model snapshot. Runs Load once at start and keep
// that snapshot for their whole duration, so a Swap never changes a run in
// flight.
type Holder struct {
	current atomic.Pointer[Snapshot]
	metrics *metrics.Manager
}

// NewHolder returns an empty holder. m may be nil.
func NewHolder(m *metrics.Manager) *Holder {
	return &Holder{metrics: m}
}

// Load returns the current snapshot, or nil before the first Swap.
func (h *Holder) Load() *Snapshot {
	return h.current.Load()
}

// Swap publishes next and returns the snapshot it replaced.
func (h *Holder) Swap(next Snapshot) *Snapshot {
	prev := h.current.Swap(&next)
	h.metrics.RecordModelSwap()
	return prev
}

// SwapVersion publishes a stored version.
func (h *Holder) SwapVersion(v ModelVersion) *Snapshot {
	return h.Swap(Snapshot{VersionID: v.VersionID, Model: v.Model})
}

// Refresh publishes the store's active version when it differs from the held
// one. It reports whether a swap happened. A store without an active version
// leaves the holder unchanged.
func (h *Holder) Refresh(store *Store) (bool, error) {
	v, err := store.GetCurrent()
	if errors.Is(err, ErrNoActiveModel) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("refresh model: %w", err)
	}
	if cur := h.Load(); cur != nil && cur.VersionID == v.VersionID {
		return false, nil
	}
	h.SwapVersion(v)
	return true, nil
}
// #endregion holder
