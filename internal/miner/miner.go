// Package miner learns a trajectory model and recurring story archetypes from a
// corpus by classifying story segments with an external classifier.
package miner

// #region imports
import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/collab"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/internal/narrative"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/pkg/logger"
	"github.com/danielpatrickdp/narrative-trajectory/go-planner/pkg/metrics"
)

// #endregion

// #region config

// Sampling selects which stories are mined when the corpus exceeds the cap.
type Sampling string

const (
	SamplingSequential Sampling = "sequential"
	SamplingRandom     Sampling = "random"
)

// Config controls a mining run.
type Config struct {
	Segments             int             `koanf:"segments"`
	Bins                 int             `koanf:"bins"`
	SampleCap            int             `koanf:"sample_cap"`
	Sampling             Sampling        `koanf:"sampling"`
	Seed                 uint64          `koanf:"seed"`
	MinSegmentChars      int             `koanf:"min_segment_chars"`
	TopK                 int             `koanf:"top_k"`
	TopTransitionsPerBin int             `koanf:"top_transitions_per_bin"`
	Workers              int             `koanf:"workers"`
	StartLabel           narrative.Label `koanf:"start_label"`
	DefaultLabel         narrative.Label `koanf:"default_label"`
	FillerLabel          narrative.Label `koanf:"filler_label"`
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		Segments:             15,
		Bins:                 narrative.DefaultBins,
		SampleCap:            50,
		Sampling:             SamplingSequential,
		MinSegmentChars:      20,
		TopK:                 15,
		TopTransitionsPerBin: 3,
		Workers:              4,
		StartLabel:           narrative.Introduction,
		DefaultLabel:         narrative.Description,
		FillerLabel:          narrative.RisingAction,
	}
}

func (c Config) validate(alpha *narrative.Alphabet) error {
	if c.Segments <= 0 || c.Bins <= 0 || c.SampleCap <= 0 || c.TopK <= 0 {
		return fmt.Errorf("%w: segments, bins, sample cap and top-k must be positive", ErrInvalidConfig)
	}
	if c.Sampling != SamplingSequential && c.Sampling != SamplingRandom {
		return fmt.Errorf("%w: unknown sampling %q", ErrInvalidConfig, c.Sampling)
	}
	for _, l := range []narrative.Label{c.StartLabel, c.DefaultLabel, c.FillerLabel} {
		if !alpha.Contains(l) {
			return fmt.Errorf("%w: label %q not in alphabet", ErrInvalidConfig, l)
		}
	}
	return nil
}

// #endregion config

// #region miner

// Result is a complete mining outcome. Partial results are never returned.
type Result struct {
	Trajectory *narrative.Trajectory
	Stats      narrative.DatasetStats
}

// Miner runs the archetype mining pipeline.
type Miner struct {
	classifier collab.Classifier
	alphabet   *narrative.Alphabet
	cfg        Config
	log        logger.Logger
	metrics    *metrics.Manager
}

// Option configures a Miner.
type Option func(*Miner)

// WithLogger attaches a logger.
func WithLogger(l logger.Logger) Option { return func(m *Miner) { m.log = l } }

// WithMetrics attaches a metrics manager.
func WithMetrics(mm *metrics.Manager) Option { return func(m *Miner) { m.metrics = mm } }

// New creates a Miner after validating cfg against alpha.
func New(classifier collab.Classifier, alpha *narrative.Alphabet, cfg Config, opts ...Option) (*Miner, error) {
	if classifier == nil {
		return nil, fmt.Errorf("%w: classifier required", ErrInvalidConfig)
	}
	if err := cfg.validate(alpha); err != nil {
		return nil, err
	}
	m := &Miner{classifier: classifier, alphabet: alpha, cfg: cfg, log: logger.Nop()}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// #endregion miner

// #region classify-story

// storyPath is one story's classified segments in order.
type storyPath struct {
	labels    []narrative.Label
	bins      []int
	usable    int
	recovered int
	coerced   int
}

func (m *Miner) classifyStory(ctx context.Context, idx int, s Story) (storyPath, error) {
	segments := Segment(s.Text, m.cfg.Segments)
	var p storyPath
	for i, seg := range segments {
		if err := ctx.Err(); err != nil {
			return p, err
		}
		if len(strings.TrimSpace(seg)) < m.cfg.MinSegmentChars {
			continue
		}
		p.usable++

		label, err := m.classifier.Classify(ctx, seg)
		recovered, coerced := false, false
		switch {
		case err != nil && ctx.Err() != nil:
			return p, ctx.Err()
		case err != nil:
			m.log.Warn(ctx, "classifier failed, using filler label",
				logger.Int("story", idx), logger.Int("segment", i), logger.Error(err))
			label, recovered = m.cfg.FillerLabel, true
			p.recovered++
		case !m.alphabet.Contains(label):
			m.log.Debug(ctx, "coercing out-of-alphabet label",
				logger.Int("story", idx), logger.String("label", string(label)))
			label, coerced = m.cfg.DefaultLabel, true
			p.coerced++
		}
		m.metrics.RecordSegment(recovered, coerced)

		p.labels = append(p.labels, label)
		p.bins = append(p.bins, i*m.cfg.Bins/len(segments))
	}
	return p, nil
}

// #endregion classify-story

// #region mine

// Mine classifies a bounded sample of stories and builds the smoothed
// trajectory model plus the ranked discovered paths. Stories are classified
// concurrently; aggregation follows corpus order so results are deterministic.
func (m *Miner) Mine(ctx context.Context, stories []Story) (*Result, error) {
	start := time.Now()
	sample := m.sample(stories)
	if len(sample) == 0 {
		return nil, ErrEmptyCorpus
	}
	m.log.Info(ctx, "mining started",
		logger.Int("corpus", len(stories)), logger.Int("sampled", len(sample)),
		logger.String("sampling", string(m.cfg.Sampling)))

	paths := make([]storyPath, len(sample))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(m.cfg.Workers, 1))
	for i, s := range sample {
		g.Go(func() error {
			p, err := m.classifyStory(gctx, i, s)
			if err != nil {
				return err
			}
			paths[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		m.log.Warn(ctx, "mining aborted", logger.Error(err))
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := m.aggregate(paths)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	m.metrics.ObserveMining(elapsed)
	m.log.Info(ctx, "mining complete",
		logger.Int("segments", res.Stats.SegmentsClassified),
		logger.Int("recovered", res.Stats.RecoveredFailures),
		logger.Int("coerced", res.Stats.CoercedLabels),
		logger.Int("paths", len(res.Stats.Paths)),
		logger.Int64("elapsed_ms", elapsed.Milliseconds()))
	return res, nil
}

func (m *Miner) sample(stories []Story) []Story {
	if len(stories) <= m.cfg.SampleCap {
		return stories
	}
	if m.cfg.Sampling == SamplingSequential {
		return stories[:m.cfg.SampleCap]
	}
	rng := rand.New(rand.NewPCG(m.cfg.Seed, m.cfg.Seed^0x5851f42d4c957f2d))
	idx := rng.Perm(len(stories))[:m.cfg.SampleCap]
	slices.Sort(idx)
	out := make([]Story, len(idx))
	for i, j := range idx {
		out[i] = stories[j]
	}
	return out
}

// #endregion mine

// #region aggregate

func (m *Miner) aggregate(paths []storyPath) (*Result, error) {
	n := m.alphabet.Len()
	counts := make([][]int, m.cfg.Bins)
	for b := range counts {
		counts[b] = make([]int, n*n)
	}
	stats := narrative.DatasetStats{
		StoriesProcessed:  len(paths),
		LabelDistribution: make(map[narrative.Label]int),
	}

	for _, p := range paths {
		stats.SegmentsClassified += p.usable
		stats.RecoveredFailures += p.recovered
		stats.CoercedLabels += p.coerced
		prev := m.cfg.StartLabel
		for k, label := range p.labels {
			from, _ := m.alphabet.Index(prev)
			to, _ := m.alphabet.Index(label)
			counts[p.bins[k]][from*n+to]++
			stats.LabelDistribution[label]++
			prev = label
		}
	}
	if stats.SegmentsClassified == 0 {
		return nil, fmt.Errorf("%w: no usable segments", ErrEmptyCorpus)
	}
	if stats.RecoveredFailures == stats.SegmentsClassified {
		return nil, fmt.Errorf("%w: all %d classifications failed", ErrClassifierUnavailable, stats.RecoveredFailures)
	}

	model, err := m.smooth(counts)
	if err != nil {
		return nil, err
	}
	stats.TopTransitions = m.topTransitions(counts)
	stats.Paths = m.discoverPaths(paths)
	return &Result{Trajectory: model, Stats: stats}, nil
}

// smooth applies add-one smoothing: (count + 1) / (rowTotal + N).
func (m *Miner) smooth(counts [][]int) (*narrative.Trajectory, error) {
	n := m.alphabet.Len()
	bins := make([]*narrative.Matrix, len(counts))
	for b, c := range counts {
		rows := make([][]float64, n)
		for from := range n {
			total := 0
			for to := range n {
				total += c[from*n+to]
			}
			rows[from] = make([]float64, n)
			for to := range n {
				rows[from][to] = float64(c[from*n+to]+1) / float64(total+n)
			}
		}
		mat, err := narrative.MatrixFromProbabilities(m.alphabet, rows)
		if err != nil {
			return nil, fmt.Errorf("smooth bin %d: %w", b, err)
		}
		bins[b] = mat
	}
	return narrative.NewTrajectory(m.alphabet, bins)
}

func (m *Miner) topTransitions(counts [][]int) []narrative.BinTransition {
	n := m.alphabet.Len()
	var out []narrative.BinTransition
	for b, c := range counts {
		var bin []narrative.BinTransition
		for cell, v := range c {
			if v > 0 {
				bin = append(bin, narrative.BinTransition{
					Bin: b, From: m.alphabet.At(cell / n), To: m.alphabet.At(cell % n), Count: v,
				})
			}
		}
		// cells are visited in alphabet order, so a stable sort keeps ties deterministic
		sort.SliceStable(bin, func(i, j int) bool { return bin[i].Count > bin[j].Count })
		if len(bin) > m.cfg.TopTransitionsPerBin {
			bin = bin[:m.cfg.TopTransitionsPerBin]
		}
		out = append(out, bin...)
	}
	return out
}

// #endregion aggregate

// #region discover-paths

var pathNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("narrative-trajectory/discovered-path"))

// PathID derives a stable identifier from a label sequence.
func PathID(seq []narrative.Label) string {
	return uuid.NewSHA1(pathNamespace, []byte(sequenceKey(seq))).String()
}

func sequenceKey(seq []narrative.Label) string {
	parts := make([]string, len(seq))
	for i, l := range seq {
		parts[i] = string(l)
	}
	return strings.Join(parts, ">")
}

// discoverPaths groups identical sequences, ranks them by frequency with ties
// in order of first appearance, and keeps the top K. Percentages are shares of
// the stories that produced at least one label.
func (m *Miner) discoverPaths(paths []storyPath) []narrative.DiscoveredPath {
	index := make(map[string]int)
	var found []narrative.DiscoveredPath
	labeled := 0
	for _, p := range paths {
		if len(p.labels) == 0 {
			continue
		}
		labeled++
		key := sequenceKey(p.labels)
		if i, ok := index[key]; ok {
			found[i].Frequency++
			continue
		}
		index[key] = len(found)
		found = append(found, narrative.DiscoveredPath{
			ID:        PathID(p.labels),
			Name:      NamePath(p.labels),
			Sequence:  slices.Clone(p.labels),
			Frequency: 1,
		})
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].Frequency > found[j].Frequency })
	if len(found) > m.cfg.TopK {
		found = found[:m.cfg.TopK]
	}
	for i := range found {
		found[i].Percentage = 100 * float64(found[i].Frequency) / float64(labeled)
	}
	return found
}

// #endregion discover-paths
