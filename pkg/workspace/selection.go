package workspace

import (
	"context"
	"fmt"
	"strings"
)

// SelectionMode names how an attribute query combines with the current selection.
type SelectionMode string

const (
	SelectNew    SelectionMode = "NEW_SELECTION"
	SelectAdd    SelectionMode = "ADD_TO_SELECTION"
	SelectRemove SelectionMode = "REMOVE_FROM_SELECTION"
	SelectSubset SelectionMode = "SUBSET_SELECTION"
	SelectSwitch SelectionMode = "SWITCH_SELECTION"
	SelectClear  SelectionMode = "CLEAR_SELECTION"
)

var selectionModes = []SelectionMode{SelectNew, SelectAdd, SelectRemove, SelectSubset, SelectSwitch, SelectClear}

// ParseSelectionMode parses a mode name case-insensitively.
func ParseSelectionMode(s string) (SelectionMode, error) {
	want := strings.ToUpper(strings.TrimSpace(s))
	for _, m := range selectionModes {
		if string(m) == want {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown selection type %q", s)
}

// Selection is an ordered set of object IDs.
// A nil *Selection means "no selection", which tools treat as all features.
type Selection struct {
	ids []int64
	set map[int64]struct{}
}

// NewSelection builds a selection from ids, dropping repeats and keeping first-seen order.
func NewSelection(ids ...int64) *Selection {
	s := &Selection{
		ids: make([]int64, 0, len(ids)),
		set: make(map[int64]struct{}, len(ids)),
	}
	for _, id := range ids {
		s.add(id)
	}
	return s
}

func (s *Selection) add(id int64) {
	if _, ok := s.set[id]; ok {
		return
	}
	s.set[id] = struct{}{}
	s.ids = append(s.ids, id)
}

// Len returns the number of selected IDs. A nil selection has length 0.
func (s *Selection) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

// Contains reports whether id is selected.
func (s *Selection) Contains(id int64) bool {
	if s == nil {
		return false
	}
	_, ok := s.set[id]
	return ok
}

// IDs returns a copy of the selected IDs in selection order.
func (s *Selection) IDs() []int64 {
	if s == nil {
		return nil
	}
	ids := make([]int64, len(s.ids))
	copy(ids, s.ids)
	return ids
}

// Apply combines the selection with the IDs matched by a query.
// all lists every feature of the layer and is only consulted by SelectSwitch.
func (s *Selection) Apply(mode SelectionMode, matched, all []int64) *Selection {
	switch mode {
	case SelectNew:
		return NewSelection(matched...)
	case SelectAdd:
		next := NewSelection(s.IDs()...)
		for _, id := range matched {
			next.add(id)
		}
		return next
	case SelectRemove:
		drop := NewSelection(matched...)
		return s.filter(func(id int64) bool { return !drop.Contains(id) })
	case SelectSubset:
		keep := NewSelection(matched...)
		return s.filter(keep.Contains)
	case SelectSwitch:
		next := NewSelection()
		for _, id := range all {
			if !s.Contains(id) {
				next.add(id)
			}
		}
		return next
	case SelectClear:
		return nil
	default:
		return s
	}
}

func (s *Selection) filter(keep func(int64) bool) *Selection {
	next := NewSelection()
	for _, id := range s.IDs() {
		if keep(id) {
			next.add(id)
		}
	}
	return next
}

// LayerState holds the name and selection of a layer. Store implementations
// embed it and supply only the queries.
type LayerState struct {
	name      string
	source    string
	selection *Selection
}

// NewLayerState returns the state of a freshly made layer with no selection.
func NewLayerState(name, source string) LayerState {
	return LayerState{name: name, source: source}
}

func (l *LayerState) Name() string          { return l.name }
func (l *LayerState) Source() string        { return l.source }
func (l *LayerState) Selection() *Selection { return l.selection }
func (l *LayerState) SelectNone()           { l.selection = NewSelection() }

// Select applies mode using query to resolve object IDs; query receives an
// empty where clause when every ID of the layer is needed.
func (l *LayerState) Select(ctx context.Context, mode SelectionMode, where string, query func(ctx context.Context, where string) ([]int64, error)) (int, error) {
	const tool = "SelectLayerByAttribute"

	var matched, all []int64
	var err error

	switch mode {
	case SelectClear:
		l.selection = nil
		return 0, nil
	case SelectSwitch:
		all, err = query(ctx, "")
	case SelectNew, SelectAdd, SelectRemove, SelectSubset:
		matched, err = query(ctx, where)
	default:
		return 0, Errorf(tool, "unknown selection type %q", mode)
	}
	if err != nil {
		return 0, Wrap(tool, err)
	}

	l.selection = l.selection.Apply(mode, matched, all)
	return l.selection.Len(), nil
}
