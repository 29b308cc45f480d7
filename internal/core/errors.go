package core

// errors.go maps technical errors to user-facing messages with codes.
//
// When users encounter errors they can quote the code to support staff for
// faster diagnosis. Patterns are matched case-insensitively with
// strings.Contains; the first matching pattern wins, so specific patterns
// come before general ones.
//
// Code ranges:
//
//	VAL001-VAL099  - row validation (missing identifiers, bad CSV shape)
//	API001-API099  - remote case-service responses
//	NET001-NET099  - transport failures (timeouts, refused connections)
//	BATCH001-099   - batch lifecycle (cancelled, busy, not found)
//	ERR000         - fallback

import (
	"fmt"
	"strings"
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

var errorPatterns = []errorPattern{
	{
		pattern: "missing required field",
		msg: UserMessage{
			Message: "A mandatory identifier field is empty",
			Action:  "Ensure every row has litigation_id and status_id values",
			Code:    "VAL001",
		},
	},
	{
		pattern: "parse csv",
		msg: UserMessage{
			Message: "The file is not a valid CSV",
			Action:  "Ensure the file is comma-separated with a header row",
			Code:    "VAL002",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Upload a CSV file with a header and data rows",
			Code:    "VAL003",
		},
	},
	{
		pattern: "no data rows",
		msg: UserMessage{
			Message: "The file has a header but no data rows",
			Action:  "Add case rows below the header before uploading",
			Code:    "VAL004",
		},
	},
	{
		pattern: "unauthorized",
		msg: UserMessage{
			Message: "The case service rejected the API credential",
			Action:  "Check the configured CASE_API_KEY",
			Code:    "API001",
		},
	},
	{
		pattern: "too many requests",
		msg: UserMessage{
			Message: "The case service is throttling requests",
			Action:  "Wait a minute and retry; consider a slower pace setting",
			Code:    "API002",
		},
	},
	{
		pattern: "case service returned",
		msg: UserMessage{
			Message: "The case service rejected the request",
			Action:  "Review the per-row error details in the batch report",
			Code:    "API003",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The case service did not respond in time",
			Action:  "Try again; the service may be slow or unreachable",
			Code:    "NET001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to reach the case service",
			Action:  "Check the configured CASE_API_URL and try again",
			Code:    "NET002",
		},
	},
	{
		pattern: "batch cancelled",
		msg: UserMessage{
			Message: "The batch was cancelled before completion",
			Action:  "Rows not yet attempted were not submitted; start a new batch for them",
			Code:    "BATCH001",
		},
	},
	{
		pattern: "too many concurrent batches",
		msg: UserMessage{
			Message: "Too many batches are already running",
			Action:  "Wait for a running batch to finish and try again",
			Code:    "BATCH002",
		},
	},
	{
		pattern: "batch not found",
		msg: UserMessage{
			Message: "That batch is no longer tracked",
			Action:  "The batch may have expired; start a new one",
			Code:    "BATCH003",
		},
	},
}

// MapError converts a technical error to a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{Message: "Unknown error", Code: "ERR000"}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return UserMessage{
		Message: fmt.Sprintf("An unexpected error occurred: %v", err),
		Action:  "Please try again or contact support",
		Code:    "ERR000",
	}
}
