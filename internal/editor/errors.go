package editor

import "errors"

// Editor errors.
var (
	ErrOutOfRange            = errors.New("grid index out of range")
	ErrNoCharacterSelected   = errors.New("no character selected")
	ErrNoValidData           = errors.New("no valid data found")
	ErrDragActive            = errors.New("a drag is already in progress")
	ErrNoDrag                = errors.New("no drag in progress")
	ErrGridDragDisabled      = errors.New("grid cells cannot be dragged in multi-select mode")
	ErrMultiSelectDuringDrag = errors.New("cannot enter multi-select while dragging")
	ErrNoPendingReplace      = errors.New("no pending replace")
	ErrInvalidImageURL       = errors.New("invalid image URL")
	ErrEmptyCell             = errors.New("cell is empty")
	ErrNameNotEditable       = errors.New("character name is not editable")
	ErrNoCharacter           = errors.New("drag source has no character")
)
