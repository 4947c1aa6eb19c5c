package miner

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
)

// #region errors

var (
	// ErrBadCorpus means the corpus could not be read or parsed.
	ErrBadCorpus = errors.New("bad corpus")
	// ErrEmptyCorpus means the corpus parsed but holds nothing to mine.
	ErrEmptyCorpus = errors.New("empty corpus")
	// ErrClassifierUnavailable means every classification attempt failed.
	ErrClassifierUnavailable = errors.New("classifier unavailable")
	// ErrInvalidConfig rejects miner settings that cannot produce a model.
	ErrInvalidConfig = errors.New("invalid miner config")
)

// #endregion errors

// #region story

// Story is one corpus record. Only Text is required.
type Story struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

// UnmarshalJSON accepts either an object or a bare string holding the text.
func (s *Story) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &s.Text)
	}
	type plain Story
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = Story(p)
	return nil
}

// #endregion story

// #region load

// LoadCorpus parses a JSON array of stories or newline-delimited JSON records.
// Records with blank text are dropped.
func LoadCorpus(r io.Reader) ([]Story, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read: %w", ErrBadCorpus, err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrEmptyCorpus
	}

	var stories []Story
	if data[0] == '[' {
		if err := json.Unmarshal(data, &stories); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadCorpus, err)
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(data))
		for n := 1; ; n++ {
			var s Story
			err := dec.Decode(&s)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("%w: record %d: %w", ErrBadCorpus, n, err)
			}
			stories = append(stories, s)
		}
	}

	kept := stories[:0]
	for _, s := range stories {
		if strings.TrimFunc(s.Text, unicode.IsSpace) != "" {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return nil, ErrEmptyCorpus
	}
	return kept, nil
}

// LoadCorpusFile reads a corpus from path.
func LoadCorpusFile(path string) ([]Story, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrBadCorpus, path, err)
	}
	defer f.Close()
	return LoadCorpus(f)
}

// #endregion load
