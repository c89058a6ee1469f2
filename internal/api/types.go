package api

import "time"

// ValueResponse is the body of GET /v1/value
type ValueResponse struct {
	Key       string    `json:"key"`
	Value     *int      `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
