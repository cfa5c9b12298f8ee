package engine

// errors.go maps technical errors to user-facing messages with support
// codes. Codes are grouped by concern: SRC (source files), MAP (mapping),
// ROW (row validation), JOB (lifecycle), RBK (rollback), with ERR000 as the
// fallback. Patterns are matched case-insensitively with strings.Contains;
// the first match wins, so specific patterns come before general ones.

import (
	"errors"
	"strings"
	"time"
)

// Sentinel errors for API-level conditions.
var (
	ErrJobNotFound           = errors.New("migration job not found")
	ErrConfirmationRequired  = errors.New("confirmation token required")
	ErrRollbackWindowExpired = errors.New("rollback window expired")
	ErrMappingIncomplete     = errors.New("required target fields are unmapped")
)

// RollbackWindowNote formats the standard note attached to completed jobs.
func RollbackWindowNote(deadline time.Time) string {
	return "rollback available until " + deadline.UTC().Format(time.RFC3339)
}

// UserMessage provides user-friendly error information with actionable
// guidance and a code for support reference.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Source file errors (SRC001-SRC099)
	{
		pattern: "unreadable source",
		msg: UserMessage{
			Message: "The uploaded file could not be read",
			Action:  "Export the data again as CSV or XLSX and retry",
			Code:    "SRC001",
		},
	},
	{
		pattern: "no columns detected",
		msg: UserMessage{
			Message: "No columns were found in the file",
			Action:  "Check that the first row contains column headers",
			Code:    "SRC002",
		},
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the export into smaller files",
			Code:    "SRC003",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the export into smaller files",
			Code:    "SRC003",
		},
	},

	// Mapping errors (MAP001-MAP099)
	{
		pattern: "required target fields are unmapped",
		msg: UserMessage{
			Message: "Some required fields have no source column mapped",
			Action:  "Map the listed fields before importing",
			Code:    "MAP001",
		},
	},
	{
		pattern: "unknown connector",
		msg: UserMessage{
			Message: "The selected source system is not supported",
			Action:  "Pick a source system from the detection list",
			Code:    "MAP002",
		},
	},
	{
		pattern: "unknown target field",
		msg: UserMessage{
			Message: "A mapping points at an unknown field",
			Action:  "Remove or correct the highlighted mapping",
			Code:    "MAP003",
		},
	},

	// Row errors surfaced at job level (ROW001-ROW099)
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A case with this number already exists",
			Action:  "Review the error sample for duplicate case numbers",
			Code:    "ROW001",
		},
	},
	{
		pattern: "foreign key",
		msg: UserMessage{
			Message: "A row references data that does not exist",
			Action:  "Review the error sample for the affected rows",
			Code:    "ROW002",
		},
	},

	// Job lifecycle errors (JOB001-JOB099)
	{
		pattern: "illegal job state transition",
		msg: UserMessage{
			Message: "That action is not available in the job's current state",
			Action:  "Refresh the job status and retry the allowed action",
			Code:    "JOB001",
		},
	},
	{
		pattern: "migration job not found",
		msg: UserMessage{
			Message: "The migration job no longer exists",
			Action:  "Start a new upload",
			Code:    "JOB002",
		},
	},
	{
		pattern: "confirmation token required",
		msg: UserMessage{
			Message: "This action needs an explicit confirmation",
			Action:  "Resubmit with the confirmation token shown in the dialog",
			Code:    "JOB003",
		},
	},
	{
		pattern: "too many concurrent imports",
		msg: UserMessage{
			Message: "Too many imports are running right now",
			Action:  "Please wait a moment and try again",
			Code:    "JOB004",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The operation was cancelled",
			Action:  "Start again when ready",
			Code:    "JOB005",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The operation timed out",
			Action:  "Try again with a smaller file or later",
			Code:    "JOB006",
		},
	},

	// Rollback errors (RBK001-RBK099)
	{
		pattern: "rollback window expired",
		msg: UserMessage{
			Message: "The rollback window for this import has closed",
			Action:  "Imports can only be rolled back within the window shown at completion",
			Code:    "RBK001",
		},
	},

	// General database trouble
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the database",
			Action:  "Please try again in a few moments",
			Code:    "DB001",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "The database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB002",
		},
	},
}

// ForUser translates an error into a user-facing message. Unmatched errors
// get the ERR000 fallback; the technical detail stays in the logs.
func ForUser(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	lower := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(lower, p.pattern) {
			return p.msg
		}
	}
	return UserMessage{
		Message: "An unexpected error occurred",
		Action:  "Please try again or contact support",
		Code:    "ERR000",
	}
}
