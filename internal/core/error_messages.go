package core

// # Error Codes Reference
//
// Every failure in a run is scoped to the smallest unit that can absorb it
// (one stage or one file) and logged with a code for support reference.
//
// # Load Errors (LOAD001-LOAD099)
//
//	LOAD001 - Schema source malformed: the schema catalog degraded to empty
//	          Action: Check the "Field Name" and "DataType" columns
//
//	LOAD002 - Rule config malformed: the rule catalog degraded to empty
//	          Action: Check the file_prefix, test and attribute columns
//
// # I/O Errors (IO001-IO099)
//
//	IO001 - Output sink failed: a clean, bad or metadata file could not be written
//	        Action: Check the output directory permissions; the file will be retried
//
//	IO002 - Input unreadable: a source file could not be opened or parsed
//	        Action: Verify the file is a delimited file with a header row
//
//	IO003 - Ledger unavailable: the scanned-files ledger could not be read or updated
//	        Action: Check the ledger backend; unrecorded files are retried next run
//
// # Rule Errors (RULE001-RULE099)
//
//	RULE001 - Attribute missing: a configured attribute is not a column of the file
//	          Action: Fix the rule config or the upstream file layout
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Run in progress: another run holds the pipeline
//	         Action: Wait for the current run to finish
//
//	RUN002 - Run cancelled: the run was interrupted; unfinished files are retried
//
// # Default Error (ERR000)
//
// Fallback when no typed error or pattern matches.

import (
	"errors"
	"fmt"
	"strings"
)

// LoadError reports a malformed schema or rule-config source.
// Callers degrade to an empty catalog and continue.
type LoadError struct {
	Source string // "schema" or "rules"
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// IOError reports a sink or source that could not be read or written.
type IOError struct {
	Op   string // "read", "write", "ledger"
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// RuleApplicationError reports a configured attribute that a stage could not
// apply. The stage is treated as having found nothing.
type RuleApplicationError struct {
	Stage     Stage
	Attribute string
	Err       error
}

func (e *RuleApplicationError) Error() string {
	return fmt.Sprintf("%s: attribute %q: %v", e.Stage, e.Attribute, e.Err)
}

func (e *RuleApplicationError) Unwrap() error { return e.Err }

// ErrAttributeMissing is wrapped by RuleApplicationError when a configured
// attribute is not a column of the batch.
var ErrAttributeMissing = errors.New("attribute not present in records")

// ErrRunInProgress is returned when a run is requested while another holds the pipeline.
var ErrRunInProgress = errors.New("run in progress, please try again later")

// ErrRunNotFound is returned for a run ID that is unknown or no longer in history.
var ErrRunNotFound = errors.New("run not found")

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgSchemaLoad = UserMessage{
		Message: "Schema source is malformed",
		Action:  `Check the "Field Name" and "DataType" columns`,
		Code:    "LOAD001",
	}
	msgRulesLoad = UserMessage{
		Message: "Rule config is malformed",
		Action:  "Check the file_prefix, test and attribute columns",
		Code:    "LOAD002",
	}
	msgSinkWrite = UserMessage{
		Message: "Output file could not be written",
		Action:  "Check the output directory permissions; the file will be retried",
		Code:    "IO001",
	}
	msgSourceRead = UserMessage{
		Message: "Source file could not be read",
		Action:  "Verify the file is a delimited file with a header row",
		Code:    "IO002",
	}
	msgLedger = UserMessage{
		Message: "Scanned-files ledger is unavailable",
		Action:  "Check the ledger backend; unrecorded files are retried next run",
		Code:    "IO003",
	}
	msgAttribute = UserMessage{
		Message: "Configured attribute is not a column of the file",
		Action:  "Fix the rule config or the upstream file layout",
		Code:    "RULE001",
	}
	msgRunInProgress = UserMessage{
		Message: "A run is already in progress",
		Action:  "Wait for the current run to finish",
		Code:    "RUN001",
	}
	msgRunNotFound = UserMessage{
		Message: "Run not found",
		Action:  "Only recent runs are kept; list runs for valid IDs",
		Code:    "RUN003",
	}
	msgCancelled = UserMessage{
		Message: "Run was cancelled",
		Action:  "Unfinished files are retried on the next run",
		Code:    "RUN002",
	}
)

// errorPattern maps an untyped error message fragment to a user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns cover errors that reach MapError without a typed wrapper.
// The first match wins, so specific patterns come before general ones.
var errorPatterns = []errorPattern{
	{pattern: "context canceled", msg: msgCancelled},
	{pattern: "context deadline exceeded", msg: msgCancelled},
	{pattern: "connection refused", msg: msgLedger},
	{pattern: "permission denied", msg: msgSinkWrite},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check application logs for the technical error",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Typed errors are matched first with errors.As, then message patterns
// (case-insensitive). Unmatched errors map to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var loadErr *LoadError
	var ioErr *IOError
	var ruleErr *RuleApplicationError

	switch {
	case errors.Is(err, ErrRunInProgress):
		return msgRunInProgress
	case errors.Is(err, ErrRunNotFound):
		return msgRunNotFound
	case errors.As(err, &loadErr):
		if loadErr.Source == "schema" {
			return msgSchemaLoad
		}
		return msgRulesLoad
	case errors.As(err, &ruleErr):
		return msgAttribute
	case errors.As(err, &ioErr):
		switch ioErr.Op {
		case "read":
			return msgSourceRead
		case "ledger":
			return msgLedger
		default:
			return msgSinkWrite
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// ErrorCode returns the support code for err, or "" for nil.
func ErrorCode(err error) string {
	return MapError(err).Code
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than the default.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError wraps a technical error with its user-facing message.
type UserError struct {
	UserMessage
	Err error
}

// NewUserError wraps err with its mapped message. Returns nil for nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{UserMessage: MapError(err), Err: err}
}

func (e *UserError) Error() string { return e.Message }

func (e *UserError) Unwrap() error { return e.Err }
