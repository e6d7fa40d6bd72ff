package tutor

import (
	"errors"
	"strings"

	"github.com/ent0n29/parlons/internal/workspace"
)

var (
	ErrMissingUserID = errors.New("user id is required")
	ErrEmptyMessage  = errors.New("message is required")
	ErrMissingAudio  = errors.New("audio file is required")
)

// InputError marks a malformed request. Upstream model and speech failures
// never produce one.
type InputError struct {
	Field string
	Err   error
}

func (e *InputError) Error() string { return e.Err.Error() }

func (e *InputError) Unwrap() error { return e.Err }

func inputError(field string, err error) error {
	return &InputError{Field: field, Err: err}
}

// IsInputError reports whether err is caused by caller input.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// checkUserID trims id and rejects blank or unusable values before any
// session or workspace state is touched.
func checkUserID(field, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", inputError(field, ErrMissingUserID)
	}
	if err := workspace.ValidateUserID(id); err != nil {
		return "", inputError(field, err)
	}
	return id, nil
}

// workspaceError reports a rejected user id as caller input.
func workspaceError(field string, err error) error {
	if errors.Is(err, workspace.ErrInvalidUserID) {
		return inputError(field, err)
	}
	return err
}
