package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	// Use UUID v7 for time-ordered, sortable IDs
	// Falls back to v4 if v7 is not available (for compatibility)
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	StudyID  ID
	RunID    ID
	ParamKey ID
)

// String conversions for domain IDs
func (id StudyID) String() string { return ID(id).String() }
func (id RunID) String() string   { return ID(id).String() }
func (k ParamKey) String() string { return ID(k).String() }

// NewRunID creates a run identifier tied to its study and position.
// Run indices are zero-based and stable across re-executions of a study,
// so the same (study, index) pair always names the same simulation run.
func NewRunID(study StudyID, index int) RunID {
	return RunID(fmt.Sprintf("%s/run-%04d", study.String(), index))
}

// ParseStudyID parses a string into StudyID
func ParseStudyID(s string) (StudyID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("study ID cannot be empty")
	}
	return StudyID(s), nil
}

// ParseRunID parses a string into RunID
func ParseRunID(s string) (RunID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("run ID cannot be empty")
	}
	return RunID(s), nil
}
