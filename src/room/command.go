package room

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mitplan/raidsocket/src/types"
)

var (
	// ErrUnknownCommand is returned for a frame type no mutation handles.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrBadPayload marks a frame or payload that does not decode.
	ErrBadPayload = errors.New("malformed payload")
)

// Command is a decoded client mutation.
type Command struct {
	Type    string
	SheetID string
	Data    json.RawMessage
}

// CommandFromMessage extracts the mutation carried by a client frame.
func CommandFromMessage(msg types.Message) Command {
	return Command{Type: msg.Type, SheetID: msg.SheetID, Data: msg.Data}
}

type keyPayload struct {
	Key string `json:"key"`
}

type namePayload struct {
	Name string `json:"name"`
}

// Apply runs cmd against s. On error s may be partially modified, so callers
// apply commands to a clone.
func Apply(s *State, cmd Command) error {
	switch cmd.Type {
	case types.TypeCreateEvent:
		var ev Event
		if err := decode(cmd.Data, &ev); err != nil {
			return err
		}
		return s.CreateEvent(cmd.SheetID, ev)
	case types.TypeUpdateEvent:
		var ev Event
		if err := decode(cmd.Data, &ev); err != nil {
			return err
		}
		return s.UpdateEvent(cmd.SheetID, ev)
	case types.TypeDeleteEvent:
		var p keyPayload
		if err := decode(cmd.Data, &p); err != nil {
			return err
		}
		if p.Key == "" {
			return fmt.Errorf("%w: missing key", ErrBadPayload)
		}
		return s.DeleteEvent(cmd.SheetID, p.Key)
	case types.TypeClearEvents:
		return s.ClearEvents(cmd.SheetID)
	case types.TypeUpdateSettings:
		var p SettingsPatch
		if err := decode(cmd.Data, &p); err != nil {
			return err
		}
		return s.UpdateSettings(cmd.SheetID, p)
	case types.TypeCreateSheet:
		return s.CreateSheet(cmd.SheetID)
	case types.TypeDeleteSheet:
		return s.DeleteSheet(cmd.SheetID)
	case types.TypeRenameSheet:
		var p namePayload
		if err := decode(cmd.Data, &p); err != nil {
			return err
		}
		return s.RenameSheet(cmd.SheetID, p.Name)
	case types.TypeUpdateEncounterEvents:
		var events []json.RawMessage
		if err := decode(cmd.Data, &events); err != nil {
			return err
		}
		return s.UpdateEncounterEvents(cmd.SheetID, events)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
}

// Persistent reports whether a command is written through to durable storage
// immediately rather than on the next explicit save.
func Persistent(cmdType string) bool {
	return cmdType == types.TypeUpdateEvent
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty data", ErrBadPayload)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}
