package classification

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/doc-classifier/dashboard/internal/models"
)

// ErrUnknownKey is returned when selecting a key that is not in the current grouping.
var ErrUnknownKey = errors.New("classification key not found")

// ChartKind tells the renderer which visualization fits the selected run.
type ChartKind string

const (
	ChartNone ChartKind = "none"
	// ChartBar renders independent per-label percentages (multi-label runs).
	ChartBar ChartKind = "bar"
	// ChartPie renders mutually exclusive alternatives (single-label runs).
	ChartPie ChartKind = "pie"
)

// ChartEntry is the display configuration for one score series entry.
type ChartEntry struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

// ChartPoint is one bar or slice. Score is a percentage in [0,100].
type ChartPoint struct {
	Classification string  `json:"classification"`
	Label          string  `json:"label"`
	Score          float64 `json:"score"`
	Fill           string  `json:"fill"`
}

// KeyOption describes a selectable run.
type KeyOption struct {
	Key         string `json:"key"`
	Description string `json:"description"`
}

// ChunkView is a classified chunk of the document with its label color.
type ChunkView struct {
	ID      int64  `json:"id"`
	Text    string `json:"text"`
	Label   string `json:"label"`
	Percent int    `json:"percent"`
	Color   string `json:"color"`
}

// SelectionView is everything the renderer needs for the current selection.
type SelectionView struct {
	FileID      *int64                    `json:"fileId"`
	Keys        []KeyOption               `json:"keys"`
	SelectedKey *string                   `json:"selectedKey"`
	Run         *models.ClassificationRun `json:"run,omitempty"`
	ChartKind   ChartKind                 `json:"chartKind"`
	ChartConfig map[string]ChartEntry     `json:"chartConfig"`
	ChartData   []ChartPoint              `json:"chartData"`
	Chunks      []ChunkView               `json:"chunks"`
}

// Selector holds the record being inspected, its grouped runs and the
// selected run key. Projections are derived on demand by View.
type Selector struct {
	mu       sync.RWMutex
	palette  *Palette
	record   *models.FileRecord
	grouping Grouping
	selected string
}

// NewSelector creates an empty selector. A nil palette uses DefaultPalette.
func NewSelector(palette *Palette) *Selector {
	if palette == nil {
		palette = DefaultPalette()
	}
	return &Selector{
		palette:  palette,
		grouping: Grouping{},
	}
}

// Select feeds a record into the selector. A record with a new identity
// selects the key of its first run. Re-feeding the same record (for example
// after a list refresh added runs) keeps the current key while it still
// exists. A nil record or one without runs clears everything.
func (s *Selector) Select(record *models.FileRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sameRecord := s.record != nil && record != nil && s.record.ID == record.ID
	s.record = record.Clone()

	if record == nil || len(record.Classifications) == 0 {
		s.grouping = Grouping{}
		s.selected = ""
		return
	}

	s.grouping = GroupByKey(s.record.Classifications)
	if sameRecord && s.selected != "" {
		if _, ok := s.grouping[s.selected]; ok {
			return
		}
	}
	s.selected = Key(s.record.Classifications[0])
}

// Clear drops the current record.
func (s *Selector) Clear() {
	s.Select(nil)
}

// SetSelectedKey switches the selected run. It never performs I/O.
func (s *Selector) SetSelectedKey(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.grouping[key]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	s.selected = key
	return nil
}

// FileID returns the id of the record being inspected.
func (s *Selector) FileID() (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.record == nil {
		return 0, false
	}
	return s.record.ID, true
}

// SelectedKey returns the selected key, if any.
func (s *Selector) SelectedKey() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.selected, s.selected != ""
}

// Grouping returns a copy of the current grouping.
func (s *Selector) Grouping() Grouping {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(Grouping, len(s.grouping))
	for k, v := range s.grouping {
		out[k] = v.Clone()
	}
	return out
}

// SelectedRun resolves the selected key to its run.
func (s *Selector) SelectedRun() (models.ClassificationRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.resolved()
	if !ok {
		return models.ClassificationRun{}, false
	}
	return run.Clone(), true
}

func (s *Selector) resolved() (models.ClassificationRun, bool) {
	if s.selected == "" {
		return models.ClassificationRun{}, false
	}
	run, ok := s.grouping[s.selected]
	return run, ok
}

// View derives the renderable projection of the current state.
func (s *Selector) View() SelectionView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	view := SelectionView{
		Keys:        []KeyOption{},
		ChartKind:   ChartNone,
		ChartConfig: map[string]ChartEntry{},
		ChartData:   []ChartPoint{},
		Chunks:      []ChunkView{},
	}
	if s.record != nil {
		id := s.record.ID
		view.FileID = &id
		view.Keys = s.keyOptions()
	}

	run, ok := s.resolved()
	if !ok {
		return view
	}

	key := s.selected
	view.SelectedKey = &key
	clone := run.Clone()
	view.Run = &clone
	view.ChartKind = chartKindFor(run)
	view.ChartConfig = ChartConfig(run, s.palette)
	view.ChartData = ChartData(run, s.palette)
	view.Chunks = chunkViews(run, s.palette)
	return view
}

// keyOptions lists distinct keys in the order their runs first appear.
func (s *Selector) keyOptions() []KeyOption {
	seen := make(map[string]struct{}, len(s.grouping))
	opts := make([]KeyOption, 0, len(s.grouping))
	for _, run := range s.record.Classifications {
		key := Key(run)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		opts = append(opts, KeyOption{Key: key, Description: Describe(s.grouping[key])})
	}
	return opts
}

func chartKindFor(run models.ClassificationRun) ChartKind {
	if run.MultiLabel {
		return ChartBar
	}
	return ChartPie
}

// ChartConfig maps each score id to its label and color.
func ChartConfig(run models.ClassificationRun, palette *Palette) map[string]ChartEntry {
	cfg := make(map[string]ChartEntry, len(run.Scores))
	for _, sc := range run.Scores {
		cfg[strconv.FormatInt(sc.ID, 10)] = ChartEntry{
			Label: sc.Label,
			Color: palette.Color(sc.Label),
		}
	}
	return cfg
}

// ChartData projects the run's scores into a percentage series in run order.
func ChartData(run models.ClassificationRun, palette *Palette) []ChartPoint {
	data := make([]ChartPoint, 0, len(run.Scores))
	for _, sc := range run.Scores {
		data = append(data, ChartPoint{
			Classification: strconv.FormatInt(sc.ID, 10),
			Label:          sc.Label,
			Score:          sc.Score * 100,
			Fill:           palette.Color(sc.Label),
		})
	}
	return data
}

func chunkViews(run models.ClassificationRun, palette *Palette) []ChunkView {
	out := make([]ChunkView, 0, len(run.Chunks))
	for _, ch := range run.Chunks {
		out = append(out, ChunkView{
			ID:      ch.ID,
			Text:    ch.Chunk,
			Label:   ch.Label,
			Percent: int(math.Round(ch.Score * 100)),
			Color:   palette.Color(ch.Label),
		})
	}
	return out
}

// Describe renders a one-line summary of a run's parameters and best label.
func Describe(run models.ClassificationRun) string {
	parts := []string{run.Model, string(run.ChunkingStrategy)}
	if run.ChunkingStrategy == models.ChunkingNumber {
		parts = append(parts, fmt.Sprintf("size %s overlap %s",
			optionalInt(run.ChunkSize), optionalInt(run.ChunkOverlapSize)))
	}
	if run.MultiLabel {
		parts = append(parts, "multi-label")
	} else {
		parts = append(parts, "single-label")
	}
	if len(run.Scores) > 0 {
		top := run.Scores[0]
		parts = append(parts, fmt.Sprintf("%s %d%%", top.Label, int(math.Round(top.Score*100))))
	}
	return strings.Join(parts, " | ")
}
