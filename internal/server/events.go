package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bodul/waifu100/internal/editor"
)

// Event is one input event from the browser.
type Event struct {
	Type      string            `json:"type"`
	Index     int               `json:"index"`
	Source    *editor.Source    `json:"source,omitempty"`
	Target    *editor.Target    `json:"target,omitempty"`
	Character *editor.Character `json:"character,omitempty"`
	Name      string            `json:"name,omitempty"`
	Text      string            `json:"text,omitempty"` // name, URL, data URL, query, title, feedback or pasted grid
}

// Message is sent back to clients.
type Message struct {
	Type    string        `json:"type"` // state, result, error
	State   *editor.State `json:"state,omitempty"`
	Event   string        `json:"event,omitempty"`
	Outcome string        `json:"outcome,omitempty"`
	Notice  string        `json:"notice,omitempty"`
	Code    string        `json:"code,omitempty"`
	Error   string        `json:"error,omitempty"`
}

var errUnknownEvent = errors.New("unknown event type")

// result describes what an event did, for the sender only.
type result struct {
	Outcome string
	Notice  string
}

// apply feeds ev to ed.
func apply(ed *editor.Editor, ev Event) (result, error) {
	var res result
	switch ev.Type {
	case "start_drag":
		if ev.Source == nil {
			return res, fmt.Errorf("start_drag: source required")
		}
		return res, ed.StartDrag(*ev.Source)
	case "hover":
		return res, ed.Hover(target(ev))
	case "drop":
		out, err := ed.Drop(target(ev))
		res.Outcome = out.String()
		return res, err
	case "cancel_drag":
		ed.CancelDrag()
	case "confirm_replace":
		return res, ed.ConfirmReplace()
	case "dismiss_replace":
		ed.DismissReplace()

	case "enter_multi_select":
		return res, ed.EnterMultiSelect()
	case "exit_multi_select":
		ed.ExitMultiSelect()
	case "pointer_down":
		return res, ed.PointerDownOnCell(ev.Index)
	case "pointer_enter":
		return res, ed.PointerEnterCell(ev.Index)
	case "pointer_up":
		ed.PointerUp()
	case "bulk_fill":
		n, err := ed.BulkFill()
		res.Notice = fmt.Sprintf("filled %d cells", n)
		return res, err
	case "bulk_delete":
		n, err := ed.BulkDelete()
		res.Notice = fmt.Sprintf("cleared %d cells", n)
		return res, err

	case "select_character":
		ed.SelectCharacterForPlacement(ev.Character)
	case "select_upload":
		c := editor.NewUploaded(ev.Name, ev.Text, ed.Now())
		ed.SelectCharacterForPlacement(&c)
	case "select_url":
		c, err := editor.NewFromURL(ev.Name, ev.Text, ed.Now())
		if err != nil {
			return res, err
		}
		ed.SelectCharacterForPlacement(&c)
	case "select_web_search":
		if strings.TrimSpace(ev.Text) == "" {
			return res, fmt.Errorf("select_web_search: query required")
		}
		c := editor.NewWebSearch(ev.Text, ed.Now())
		ed.SelectCharacterForPlacement(&c)
	case "click_cell":
		click, err := ed.ClickCell(ev.Index)
		res.Outcome = string(click)
		return res, err
	case "rename_selected":
		return res, ed.RenameSelected(ev.Text)
	case "set_override":
		return res, ed.SetSelectedOverride(ev.Text)

	case "set_title":
		ed.SetTitle(ev.Text)
	case "set_verdict_feedback":
		switch ev.Text {
		case "", "like", "dislike":
			ed.SetVerdictFeedback(ev.Text)
		default:
			return res, fmt.Errorf("unknown feedback %q", ev.Text)
		}
	case "load":
		d, err := ed.Load([]byte(ev.Text))
		if err != nil {
			return res, err
		}
		res.Notice = loadNotice(d)
	default:
		return res, fmt.Errorf("%w: %q", errUnknownEvent, ev.Type)
	}
	return res, nil
}

func target(ev Event) editor.Target {
	if ev.Target == nil {
		return editor.Target{}
	}
	return *ev.Target
}

func loadNotice(d *editor.Decoded) string {
	if d.Skipped > 0 {
		return fmt.Sprintf("loaded %d characters, skipped %d entries", d.Loaded, d.Skipped)
	}
	return fmt.Sprintf("loaded %d characters", d.Loaded)
}

var errorCodes = []struct {
	err  error
	code string
}{
	{editor.ErrOutOfRange, "OutOfRange"},
	{editor.ErrNoCharacterSelected, "NoCharacterSelected"},
	{editor.ErrNoValidData, "NoValidData"},
	{editor.ErrDragActive, "DragActive"},
	{editor.ErrNoDrag, "NoDrag"},
	{editor.ErrGridDragDisabled, "GridDragDisabled"},
	{editor.ErrMultiSelectDuringDrag, "MultiSelectDuringDrag"},
	{editor.ErrNoPendingReplace, "NoPendingReplace"},
	{editor.ErrInvalidImageURL, "InvalidImageURL"},
	{editor.ErrEmptyCell, "EmptyCell"},
	{editor.ErrNameNotEditable, "NameNotEditable"},
	{editor.ErrNoCharacter, "NoCharacter"},
	{errUnknownEvent, "UnknownEvent"},
}

// errorCode maps an editor error to a stable code for clients.
func errorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "BadRequest"
}

func errorMessage(ev string, err error) Message {
	return Message{Type: "error", Event: ev, Code: errorCode(err), Error: err.Error()}
}

func stateMessage(st editor.State) []byte {
	data, _ := json.Marshal(Message{Type: "state", State: &st})
	return data
}
