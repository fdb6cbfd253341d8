// Package server implements the MCP (Model Context Protocol) server for the
// traffic violation tools.
//
// The server communicates over stdio using JSON-RPC 2.0, one request per
// line on stdin and one response per line on stdout. Supported methods are
// initialize, tools/list, tools/call and ping.
//
// # Tools
//
// Sessions:
//   - traffic_session_create: Start a session and return its ID
//   - traffic_session_destroy: End a session
//   - traffic_session_clear: Drop a session's records
//
// Analysis:
//   - traffic_analyze_image: Detect riders in an image and record violations
//   - traffic_extract_region: Crop a padded box as base64 PNG
//
// Reporting:
//   - traffic_session_stats: Totals, violation rate, per-type and per-date counts
//   - traffic_session_records: Every record in append order
//   - traffic_session_export_csv: The CSV report of a session
//   - traffic_session_audit: Persisted records and totals from the audit store
//
// # Error Handling
//
// Tool failures are JSON-RPC errors. The code tells the cause apart:
//
//	-32602  invalid arguments or unusable input image
//	-32001  unknown session
//	-32002  request superseded by a newer one on the same session
//	-32003  detector or recognizer failure, including timeouts
//	-32004  unsupported media (video)
//	-32005  audit store not configured
//	-32000  anything else
package server
