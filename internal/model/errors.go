package model

import (
	"fmt"

	"github.com/rotisserie/eris"
)

var (
	// ErrNotFound is returned when a task, company, strategy or search record does not exist.
	ErrNotFound = eris.New("not found")

	// ErrUnsupportedTaskType is returned by an agent for a task type it does not handle.
	ErrUnsupportedTaskType = eris.New("unsupported task type")

	// ErrUnknownAgentType is returned when no agent is registered for a task's agent type.
	ErrUnknownAgentType = eris.New("unknown agent type")

	// ErrCollaborator marks failures of external collaborators (search, crawl, LLM).
	ErrCollaborator = eris.New("collaborator failure")

	// ErrParse marks model output that could not be decoded. The extraction
	// parser recovers from it and it never fails a task.
	ErrParse = eris.New("parse failure")

	// ErrInvalidParams is returned when required task params are missing or malformed.
	ErrInvalidParams = eris.New("invalid params")
)

// CollaboratorError marks err as a collaborator failure of op. Both
// ErrCollaborator and err's own chain stay visible to errors.Is and errors.As.
func CollaboratorError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrCollaborator, err)
}
