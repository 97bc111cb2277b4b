package api

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
)

// Error is a failure with the HTTP status it should be reported with.
type Error struct {
	Status  int
	Message string
	Code    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%d] %s", e.Status, e.Message)
}

// NotFound builds a 404 Error.
func NotFound(message string) *Error {
	return &Error{Status: http.StatusNotFound, Message: message}
}

// ErrorBody is the JSON document written for failed requests.
type ErrorBody struct {
	ErrorMessage string `json:"errorMessage"`
	ErrorCode    string `json:"errorCode,omitempty"`
}

var statusPrefix = regexp.MustCompile(`^\[(\d+)\] *(.*)$`)

// Describe maps err to a status code and response body. An *Error keeps its
// status; other messages of the form "[NNN] text" are split into status and
// text; anything else is a 500 carrying the error message.
func Describe(err error) (int, ErrorBody) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status, ErrorBody{ErrorMessage: apiErr.Message, ErrorCode: apiErr.Code}
	}
	message := err.Error()
	if m := statusPrefix.FindStringSubmatch(message); m != nil {
		if status, convErr := strconv.Atoi(m[1]); convErr == nil {
			return status, ErrorBody{ErrorMessage: m[2]}
		}
	}
	return http.StatusInternalServerError, ErrorBody{ErrorMessage: message}
}

// Headers are set on every API response.
func Headers() map[string]string {
	return map[string]string{
		"Content-Type":                     "application/json",
		"Access-Control-Allow-Origin":      "*",
		"Access-Control-Allow-Credentials": "true",
	}
}
