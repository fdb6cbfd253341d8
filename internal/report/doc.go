// Package report exports session records as CSV and renders the session
// dashboard.
package report
