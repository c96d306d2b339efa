// Error Codes Reference
//
// This file defines user-friendly error messages with codes for support
// reference. Users quote the code; support looks it up here.
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: The file exceeds the maximum upload size
//	          Action: Split the sheet into smaller files
//	          Patterns: "file too large", "request body too large"
//
//	FILE002 - Unsupported file: Only .xlsx, .xlsm and .csv files are accepted
//	          Action: Save the sheet as .xlsx or .csv and try again
//	          Patterns: "unsupported file"
//
//	FILE003 - Unreadable sheet: The spreadsheet could not be read
//	          Action: Re-save the file from Excel and try again
//	          Patterns: "read spreadsheet", "zip: not a valid zip file"
//
//	FILE004 - Empty file: The file contains no data rows
//	          Action: Fill in the template and upload it again
//	          Patterns: "empty file"
//
//	FILE005 - No file: No file was selected
//	          Action: Choose a spreadsheet to upload
//	          Patterns: "no file provided"
//
// # Submission Errors (SUB001-SUB099)
//
//	SUB001 - Batch not found: The imported batch has expired
//	         Action: Import the file again
//	         Patterns: "batch not found"
//
//	SUB002 - Upload running: Another submission is in progress
//	         Action: Wait for the current upload to finish
//	         Patterns: "submission in progress"
//
//	SUB003 - Nothing selected: No rows were selected for upload
//	         Action: Select at least one row
//	         Patterns: "no rows selected"
//
//	SUB004 - Submission not found: The submission is no longer tracked
//	         Action: Check the log for the outcome of each row
//	         Patterns: "submission not found"
//
// # Remote Service Errors (LOOK001-LOOK099)
//
//	LOOK001 - Service unreachable: The measurement service could not be reached
//	          Action: Check your network connection and try again
//	          Patterns: "connection refused", "no such host"
//
//	LOOK002 - Not authorized: The measurement service rejected the credentials
//	          Action: Sign in again or ask for access
//	          Patterns: "http 401", "http 403"
//
//	LOOK003 - Token refused: The service refused the security token
//	          Action: Reload the page and try again
//	          Patterns: "csrf"
//
// # System Errors (SYS001-SYS099)
//
//	SYS001 - Request cancelled: The request was cancelled
//	         Action: Please try again
//	         Patterns: "context canceled"
//
//	SYS002 - Request timeout: The request timed out
//	         Action: Try again in a moment
//	         Patterns: "context deadline exceeded", "timeout"
//
//	SYS003 - Settings unavailable: Preferences storage could not be reached
//	         Action: Column settings will use defaults until storage recovers
//	         Patterns: "column settings"
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or contact support
//
// Patterns are matched case-insensitively with strings.Contains and the
// first match wins.

package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors surfaced by the service layer.
var (
	ErrBatchNotFound       = errors.New("batch not found")
	ErrSubmissionNotFound  = errors.New("submission not found")
	ErrSubmissionInFlight  = errors.New("submission in progress")
	ErrNoRowsSelected      = errors.New("no rows selected")
	ErrUnsupportedFile     = errors.New("unsupported file type")
	ErrEmptyFile           = errors.New("empty file")
	ErrNoFileProvided      = errors.New("no file provided")
	ErrFileTooLarge        = errors.New("file too large")
	ErrLookupUnavailable   = errors.New("measuring point lookup not configured")
	ErrPreferencesDisabled = errors.New("preferences store not configured")
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var (
	msgFileTooLarge = UserMessage{
		Message: "The file exceeds the maximum upload size",
		Action:  "Split the sheet into smaller files",
		Code:    "FILE001",
	}
	msgUnreadable = UserMessage{
		Message: "The spreadsheet could not be read",
		Action:  "Re-save the file from Excel and try again",
		Code:    "FILE003",
	}
	msgUnreachable = UserMessage{
		Message: "The measurement service could not be reached",
		Action:  "Check your network connection and try again",
		Code:    "LOOK001",
	}
	msgUnauthorized = UserMessage{
		Message: "The measurement service rejected the credentials",
		Action:  "Sign in again or ask for access",
		Code:    "LOOK002",
	}
	msgTimeout = UserMessage{
		Message: "The request timed out",
		Action:  "Try again in a moment",
		Code:    "SYS002",
	}
)

// errorPatterns is ordered: specific patterns before general ones.
var errorPatterns = []errorPattern{
	// File errors
	{pattern: "file too large", msg: msgFileTooLarge},
	{pattern: "request body too large", msg: msgFileTooLarge},
	{
		pattern: "unsupported file",
		msg: UserMessage{
			Message: "Only .xlsx, .xlsm and .csv files are accepted",
			Action:  "Save the sheet as .xlsx or .csv and try again",
			Code:    "FILE002",
		},
	},
	{pattern: "read spreadsheet", msg: msgUnreadable},
	{pattern: "not a valid zip file", msg: msgUnreadable},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The file contains no data rows",
			Action:  "Fill in the template and upload it again",
			Code:    "FILE004",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Choose a spreadsheet to upload",
			Code:    "FILE005",
		},
	},

	// Submission errors
	{
		pattern: "batch not found",
		msg: UserMessage{
			Message: "The imported batch has expired",
			Action:  "Import the file again",
			Code:    "SUB001",
		},
	},
	{
		pattern: "submission in progress",
		msg: UserMessage{
			Message: "Another submission is in progress",
			Action:  "Wait for the current upload to finish",
			Code:    "SUB002",
		},
	},
	{
		pattern: "no rows selected",
		msg: UserMessage{
			Message: "No rows were selected for upload",
			Action:  "Select at least one row",
			Code:    "SUB003",
		},
	},
	{
		pattern: "submission not found",
		msg: UserMessage{
			Message: "The submission is no longer tracked",
			Action:  "Check the log for the outcome of each row",
			Code:    "SUB004",
		},
	},

	// Remote service errors
	{pattern: "connection refused", msg: msgUnreachable},
	{pattern: "no such host", msg: msgUnreachable},
	{pattern: "lookup not configured", msg: msgUnreachable},
	{pattern: "http 401", msg: msgUnauthorized},
	{pattern: "http 403", msg: msgUnauthorized},
	{
		pattern: "csrf",
		msg: UserMessage{
			Message: "The service refused the security token",
			Action:  "Reload the page and try again",
			Code:    "LOOK003",
		},
	},

	// System errors
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The request was cancelled",
			Action:  "Please try again",
			Code:    "SYS001",
		},
	},
	{pattern: "context deadline exceeded", msg: msgTimeout},
	{pattern: "timeout", msg: msgTimeout},
	{
		pattern: "column settings",
		msg: UserMessage{
			Message: "Preferences storage could not be reached",
			Action:  "Column settings will use defaults until storage recovers",
			Code:    "SYS003",
		},
	},
	{
		pattern: "preferences store not configured",
		msg: UserMessage{
			Message: "Preferences storage is not configured",
			Action:  "Column settings will use defaults",
			Code:    "SYS003",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. The first
// matching pattern wins; an unmatched error yields ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var ue *UserError
	if errors.As(err, &ue) {
		return ue.User
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matched a specific pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
