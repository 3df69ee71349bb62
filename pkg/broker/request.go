package broker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/malbeclabs/querybroker/pkg/query"
)

const (
	MinMessageLength = 3
	MaxLimit         = 500
)

// Request is one natural-language question.
type Request struct {
	Message      string `json:"message" jsonschema:"the question, in Spanish or English"`
	ConnectionID string `json:"connectionId,omitempty" jsonschema:"id of the target to query; inferred from the message when empty"`
	Limit        int    `json:"limit,omitempty" jsonschema:"maximum number of rows to return, 1 to 500"`
	UserID       int64  `json:"userId,omitempty" jsonschema:"numeric id of the caller"`
	UserRole     string `json:"userRole,omitempty" jsonschema:"head_of_household or family_member"`
	UserName     string `json:"userName,omitempty" jsonschema:"username of the caller"`
	Email        string `json:"email,omitempty" jsonschema:"email of the caller"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldErrors is the list of problems found in a request.
type FieldErrors []FieldError

func (fe FieldErrors) Error() string {
	parts := make([]string, len(fe))
	for i, e := range fe {
		parts[i] = e.Field + ": " + e.Message
	}
	return strings.Join(parts, "; ")
}

// Validate returns a validation error wrapping FieldErrors, or nil.
func (r Request) Validate() error {
	var errs FieldErrors
	if utf8.RuneCountInString(strings.TrimSpace(r.Message)) < MinMessageLength {
		errs = append(errs, FieldError{Field: "message", Message: fmt.Sprintf("must be at least %d characters", MinMessageLength)})
	}
	if r.Limit != 0 && (r.Limit < 1 || r.Limit > MaxLimit) {
		errs = append(errs, FieldError{Field: "limit", Message: fmt.Sprintf("must be between 1 and %d", MaxLimit)})
	}
	if r.UserID < 0 {
		errs = append(errs, FieldError{Field: "userId", Message: "must be a positive integer"})
	}
	if len(errs) == 0 {
		return nil
	}
	return query.WrapError(query.KindValidation, "invalid request", errs)
}

func (r Request) caller() query.Caller {
	return query.InferCaller(r.Message, query.Caller{
		UserID:   r.UserID,
		Role:     strings.TrimSpace(r.UserRole),
		UserName: strings.TrimSpace(r.UserName),
		Email:    strings.TrimSpace(r.Email),
	})
}

// QueryView is the candidate as shown to callers.
type QueryView struct {
	SQL    string            `json:"sql,omitempty"`
	Params []any             `json:"params,omitempty"`
	Mongo  *query.DocumentOp `json:"mongo,omitempty"`
}

type Response struct {
	Success   bool         `json:"success"`
	RequestID string       `json:"requestId,omitempty"`
	Target    string       `json:"connectionId"`
	Query     QueryView    `json:"query"`
	Result    query.Result `json:"result"`
	Notes     string       `json:"notes,omitempty"`
	Summary   string       `json:"summary"`
}
