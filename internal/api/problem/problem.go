// Package problem renders RFC 7807 error bodies. Every failure the API returns,
// including lending engine rejections, goes through here.
package problem

import (
	"encoding/json"
	"net/http"
)

const (
	contentType = "application/problem+json"
	traceHeader = "X-Trace-ID"
	typeBaseURL = "https://errors.poolcredit.dev/"
)

// Details is the problem body. Code is the lending engine error code, such as
// LoanExpired, and is omitted for transport-level failures.
type Details struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail"`
	Code      string `json:"code,omitempty"`
	Instance  string `json:"instance"`
	RequestID string `json:"request_id"`
}

// Type builds a problem type URI from a slug like "loan/loan-expired".
func Type(slug string) string {
	return typeBaseURL + slug
}

func Write(w http.ResponseWriter, r *http.Request, status int, problemType, title, detail string) {
	WriteCode(w, r, status, problemType, "", detail, title)
}

// WriteCode is Write with an engine error code attached.
func WriteCode(w http.ResponseWriter, r *http.Request, status int, problemType, code, detail, title string) {
	d := Details{
		Type:   problemType,
		Title:  title,
		Status: status,
		Detail: detail,
		Code:   code,
	}
	if d.Type == "" {
		d.Type = "about:blank"
	}
	if d.Title == "" {
		d.Title = http.StatusText(status)
	}
	if r != nil {
		d.Instance = r.URL.Path
		d.RequestID = r.Header.Get(traceHeader)
	}
	if d.RequestID == "" {
		d.RequestID = w.Header().Get(traceHeader)
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(d)
}
