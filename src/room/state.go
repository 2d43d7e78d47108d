package room

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Defaults applied to every new sheet.
const (
	DefaultTimelineLength = 121
	DefaultColumnCount    = 2
)

var (
	// ErrSheetNotFound is returned by mutations naming a sheet the room
	// does not have.
	ErrSheetNotFound = errors.New("sheet not found")
	// ErrSheetExists is returned by CreateSheet when the id is taken.
	ErrSheetExists = errors.New("sheet already exists")
	// ErrEventNotFound is returned by updateEvent for an unknown key.
	ErrEventNotFound = errors.New("event not found")
	// ErrDuplicateEvent is returned by createEvent when the key is in use.
	ErrDuplicateEvent = errors.New("event key already used")
	// ErrInvalidEvent marks an event without a key.
	ErrInvalidEvent = errors.New("invalid event")
	// ErrInvalidSheet marks sheet input the room cannot accept.
	ErrInvalidSheet = errors.New("invalid sheet")
)

// Settings controls how a sheet's timeline is laid out.
type Settings struct {
	TimelineLength int `json:"timelineLength"`
	ColumnCount    int `json:"columnCount"`
}

// SettingsPatch carries a partial settings update. Nil fields are left as is.
type SettingsPatch struct {
	TimelineLength *int `json:"timelineLength,omitempty"`
	ColumnCount    *int `json:"columnCount,omitempty"`
}

// Event is an ability assignment placed on a sheet's timeline.
type Event struct {
	Key       string  `json:"key"`
	Name      string  `json:"name"`
	Timestamp float64 `json:"timestamp"`
	ColumnID  int     `json:"columnId"`
	Color     string  `json:"color,omitempty"`
	Icon      string  `json:"icon,omitempty"`
}

// Sheet is one plan inside a room.
type Sheet struct {
	Name            string            `json:"name"`
	Events          []Event           `json:"events"`
	EncounterEvents []json.RawMessage `json:"encounterEvents"`
	Settings        Settings          `json:"settings"`
}

// State is the full shared state of a raid room.
type State struct {
	Sheets   map[string]*Sheet `json:"sheets"`
	// Revision counts committed updates. Stores increment it on every
	// successful Update.
	Revision int64             `json:"revision"`
}

// NewState returns an empty room state.
func NewState() *State {
	return &State{Sheets: make(map[string]*Sheet)}
}

// NewSheet returns a sheet with default settings.
func NewSheet(name string) *Sheet {
	return &Sheet{
		Name:            name,
		Events:          []Event{},
		EncounterEvents: []json.RawMessage{},
		Settings: Settings{
			TimelineLength: DefaultTimelineLength,
			ColumnCount:    DefaultColumnCount,
		},
	}
}

// Decode parses a JSON encoded state. Missing collections are initialized.
func Decode(data []byte) (*State, error) {
	s := NewState()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("decode room state: %w", err)
	}
	if s.Sheets == nil {
		s.Sheets = make(map[string]*Sheet)
	}
	for _, sh := range s.Sheets {
		if sh.Events == nil {
			sh.Events = []Event{}
		}
		if sh.EncounterEvents == nil {
			sh.EncounterEvents = []json.RawMessage{}
		}
	}
	return s, nil
}

// Encode serializes the state.
func (s *State) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	out := &State{Sheets: make(map[string]*Sheet, len(s.Sheets)), Revision: s.Revision}
	for id, sh := range s.Sheets {
		cp := *sh
		cp.Events = append([]Event{}, sh.Events...)
		cp.EncounterEvents = make([]json.RawMessage, len(sh.EncounterEvents))
		for i, raw := range sh.EncounterEvents {
			cp.EncounterEvents[i] = append(json.RawMessage(nil), raw...)
		}
		out.Sheets[id] = &cp
	}
	return out
}

func (s *State) sheet(id string) (*Sheet, error) {
	sh, ok := s.Sheets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, id)
	}
	return sh, nil
}

func (sh *Sheet) indexOf(key string) int {
	for i, ev := range sh.Events {
		if ev.Key == key {
			return i
		}
	}
	return -1
}

// CreateEvent appends an event, creating the sheet with defaults if needed.
func (s *State) CreateEvent(sheetID string, ev Event) error {
	if sheetID == "" {
		return fmt.Errorf("%w: empty sheet id", ErrInvalidSheet)
	}
	if ev.Key == "" {
		return fmt.Errorf("%w: missing key", ErrInvalidEvent)
	}
	sh, ok := s.Sheets[sheetID]
	if !ok {
		sh = NewSheet(sheetID)
		s.Sheets[sheetID] = sh
	}
	if sh.indexOf(ev.Key) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateEvent, ev.Key)
	}
	sh.Events = append(sh.Events, ev)
	return nil
}

// UpdateEvent replaces the event with the same key.
func (s *State) UpdateEvent(sheetID string, ev Event) error {
	sh, err := s.sheet(sheetID)
	if err != nil {
		return err
	}
	i := sh.indexOf(ev.Key)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrEventNotFound, ev.Key)
	}
	sh.Events[i] = ev
	return nil
}

// DeleteEvent removes the event with the given key. Deleting an absent key
// is not an error.
func (s *State) DeleteEvent(sheetID, key string) error {
	sh, err := s.sheet(sheetID)
	if err != nil {
		return err
	}
	kept := sh.Events[:0]
	for _, ev := range sh.Events {
		if ev.Key != key {
			kept = append(kept, ev)
		}
	}
	sh.Events = kept
	return nil
}

// ClearEvents removes every event from a sheet.
func (s *State) ClearEvents(sheetID string) error {
	sh, err := s.sheet(sheetID)
	if err != nil {
		return err
	}
	sh.Events = []Event{}
	return nil
}

// UpdateSettings merges the non-nil fields of p into the sheet settings.
func (s *State) UpdateSettings(sheetID string, p SettingsPatch) error {
	sh, err := s.sheet(sheetID)
	if err != nil {
		return err
	}
	if p.TimelineLength != nil {
		if *p.TimelineLength < 1 {
			return fmt.Errorf("%w: timelineLength must be >= 1", ErrInvalidSheet)
		}
		sh.Settings.TimelineLength = *p.TimelineLength
	}
	if p.ColumnCount != nil {
		if *p.ColumnCount < 1 {
			return fmt.Errorf("%w: columnCount must be >= 1", ErrInvalidSheet)
		}
		sh.Settings.ColumnCount = *p.ColumnCount
	}
	return nil
}

// CreateSheet adds an empty sheet named after its id.
func (s *State) CreateSheet(sheetID string) error {
	if sheetID == "" {
		return fmt.Errorf("%w: empty sheet id", ErrInvalidSheet)
	}
	if _, ok := s.Sheets[sheetID]; ok {
		return fmt.Errorf("%w: %s", ErrSheetExists, sheetID)
	}
	s.Sheets[sheetID] = NewSheet(sheetID)
	return nil
}

// DeleteSheet removes a sheet and all of its events.
func (s *State) DeleteSheet(sheetID string) error {
	if _, err := s.sheet(sheetID); err != nil {
		return err
	}
	delete(s.Sheets, sheetID)
	return nil
}

// RenameSheet changes the display name of a sheet. The id is unchanged.
func (s *State) RenameSheet(sheetID, name string) error {
	sh, err := s.sheet(sheetID)
	if err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidSheet)
	}
	sh.Name = name
	return nil
}

// UpdateEncounterEvents replaces the boss timeline of a sheet.
func (s *State) UpdateEncounterEvents(sheetID string, events []json.RawMessage) error {
	sh, err := s.sheet(sheetID)
	if err != nil {
		return err
	}
	if events == nil {
		events = []json.RawMessage{}
	}
	sh.EncounterEvents = events
	return nil
}
