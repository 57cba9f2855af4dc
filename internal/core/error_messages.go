package core

// error_messages.go turns technical failures into coded, user-facing
// messages. Consumers (HTTP API, CLI) show the message and action and log
// the technical error; users quote the code when reporting a problem.
//
// # Source errors (SRC001-SRC099)
//
//	SRC001 - No readable source files
//	SRC002 - Source file could not be read
//
// # Backend errors (BCK001-BCK099)
//
//	BCK001 - No load backend available
//
// # Resource errors (MEM001-MEM099)
//
//	MEM001 - Build ran out of memory even after a retry
//
// # Artifact errors (ART001-ART099)
//
//	ART001 - Precomputed artifact missing
//	ART002 - Precomputed artifact invalid
//
// # Request errors (REQ001-REQ099)
//
//	REQ001 - Request cancelled
//	REQ002 - Request timed out
//	REQ003 - Invalid filter parameter
//
//	BUSY001 - Another build is running
//	RATE001 - Too many requests
//	ERR000  - Anything else

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage contains a user-friendly error message with guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

// sentinelMessages are checked first, in order, with errors.Is.
var sentinelMessages = []struct {
	err error
	msg UserMessage
}{
	{ErrResourceExhausted, UserMessage{
		Message: "Not enough memory to build the processed table",
		Action:  "Enable the precomputed artifact or raise the memory limit, then try again",
		Code:    "MEM001",
	}},
	{ErrNoSources, UserMessage{
		Message: "No readable source files were found",
		Action:  "Check SINAN_SOURCE_DIR and that it contains .parquet files",
		Code:    "SRC001",
	}},
	{ErrBackendUnavailable, UserMessage{
		Message: "No data backend is available",
		Action:  "Check the build includes the reference backend",
		Code:    "BCK001",
	}},
	{ErrArtifactNotFound, UserMessage{
		Message: "The precomputed table has not been built",
		Action:  "Run 'sinan build' to create it",
		Code:    "ART001",
	}},
	{ErrArtifactInvalid, UserMessage{
		Message: "The precomputed table is damaged or incomplete",
		Action:  "Run 'sinan build' to regenerate it",
		Code:    "ART002",
	}},
	{ErrBusy, UserMessage{
		Message: "Another build is in progress",
		Action:  "Please wait a moment and try again",
		Code:    "BUSY001",
	}},
	{ErrInvalidFilter, UserMessage{
		Message: "Invalid filter parameter",
		Action:  "Check the query parameters and try again",
		Code:    "REQ003",
	}},
	{context.Canceled, UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "REQ001",
	}},
	{context.DeadlineExceeded, UserMessage{
		Message: "Request timed out",
		Action:  "The table may still be building; try again shortly",
		Code:    "REQ002",
	}},
}

// errorPattern maps an error string pattern to a user-friendly message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns catch errors that arrive without a sentinel, typically
// from third-party libraries. Order matters: first match wins.
var errorPatterns = []errorPattern{
	{
		pattern: "out of memory",
		msg:     sentinelMessages[0].msg,
	},
	{
		pattern: "parquet",
		msg: UserMessage{
			Message: "A source file could not be read",
			Action:  "Check the file is a valid parquet file",
			Code:    "SRC002",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000). Support staff
// should check the logs for the technical error.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. Wrapped
// sentinels are matched first, then string patterns (case-insensitive).
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var pe *PipelineError
	if errors.As(err, &pe) && pe.Code != "" {
		for _, sm := range sentinelMessages {
			if sm.msg.Code == pe.Code {
				return sm.msg
			}
		}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
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

// FormatUserError formats an error for display:
// "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
