package bulk

import "fmt"

// Result summarises a best-effort batch. Items are processed independently;
// Errors holds one human-readable entry per rejected item and is nil when every
// item succeeded.
type Result struct {
	Created int      `json:"created"`
	Errors  []string `json:"errors"`
}

// Add records a successful item.
func (r *Result) Add() {
	r.Created++
}

// Fail records a rejected item under label and its zero-based index.
func (r *Result) Fail(label string, index int, format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf("%s %d: ", label, index)+fmt.Sprintf(format, args...))
}

// Failed returns the number of rejected items.
func (r Result) Failed() int {
	return len(r.Errors)
}
