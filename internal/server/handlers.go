package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ironsheep/traffic-violations-mcp/internal/analyzer"
	"github.com/ironsheep/traffic-violations-mcp/internal/detection"
	"github.com/ironsheep/traffic-violations-mcp/internal/imaging"
	"github.com/ironsheep/traffic-violations-mcp/internal/report"
	"github.com/ironsheep/traffic-violations-mcp/internal/service"
	"github.com/ironsheep/traffic-violations-mcp/internal/session"
)

// JSON-RPC error codes for tool failures.
const (
	codeInvalidParams    = -32602
	codeToolFailed       = -32000
	codeSessionNotFound  = -32001
	codeSuperseded       = -32002
	codeExternalService  = -32003
	codeUnsupportedMedia = -32004
	codeAuditDisabled    = -32005
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "traffic_analyze_image").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		code := errorCode(err)
		s.log.Debug().Err(err).Str("tool", params.Name).Int("code", code).Msg("tool failed")
		return s.errorResponse(req.ID, code, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// errInvalidArgs marks malformed tool arguments.
var errInvalidArgs = errors.New("invalid arguments")

func errorCode(err error) int {
	switch {
	case errors.Is(err, errInvalidArgs), errors.Is(err, service.ErrInvalidInput):
		return codeInvalidParams
	case errors.Is(err, session.ErrNotFound):
		return codeSessionNotFound
	case errors.Is(err, session.ErrSuperseded):
		return codeSuperseded
	case errors.Is(err, detection.ErrExternalService):
		return codeExternalService
	case errors.Is(err, service.ErrUnsupportedMedia):
		return codeUnsupportedMedia
	case errors.Is(err, service.ErrAuditDisabled):
		return codeAuditDisabled
	default:
		return codeToolFailed
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Sessions
	case "traffic_session_create":
		return s.svc.CreateSession(), nil
	case "traffic_session_destroy":
		return s.handleSessionDestroy(args)
	case "traffic_session_clear":
		return s.handleSessionClear(args)

	// Analysis
	case "traffic_analyze_image":
		return s.handleAnalyzeImage(ctx, args)
	case "traffic_extract_region":
		return s.handleExtractRegion(args)

	// Reporting
	case "traffic_session_stats":
		return s.handleSessionStats(args)
	case "traffic_session_records":
		return s.handleSessionRecords(args)
	case "traffic_session_export_csv":
		return s.handleExportCSV(args)
	case "traffic_session_audit":
		return s.handleSessionAudit(ctx, args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure it returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 {
		args = []byte("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidArgs, err)
	}
	return nil
}

// === Session Handlers ===

type sessionArgs struct {
	SessionID string `json:"session_id"`
}

func (a sessionArgs) validate() error {
	if a.SessionID == "" {
		return fmt.Errorf("%w: session_id is required", errInvalidArgs)
	}
	return nil
}

func parseSessionArgs(args json.RawMessage) (sessionArgs, error) {
	var a sessionArgs
	if err := decodeArgs(args, &a); err != nil {
		return a, err
	}
	return a, a.validate()
}

func (s *Server) handleSessionDestroy(args json.RawMessage) (interface{}, error) {
	a, err := parseSessionArgs(args)
	if err != nil {
		return nil, err
	}
	if err := s.svc.DestroySession(a.SessionID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"session_id": a.SessionID, "destroyed": true}, nil
}

func (s *Server) handleSessionClear(args json.RawMessage) (interface{}, error) {
	a, err := parseSessionArgs(args)
	if err != nil {
		return nil, err
	}
	if err := s.svc.Clear(a.SessionID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"session_id": a.SessionID, "cleared": true}, nil
}

// === Analysis Handlers ===

type analyzeImageArgs struct {
	SessionID   string `json:"session_id"`
	Path        string `json:"path"`
	VehicleType string `json:"vehicle_type"`
	Location    string `json:"location"`
	RedLight    bool   `json:"red_light"`
	Annotate    bool   `json:"annotate"`
}

func (s *Server) handleAnalyzeImage(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a analyzeImageArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if err := (sessionArgs{SessionID: a.SessionID}).validate(); err != nil {
		return nil, err
	}
	return s.svc.AnalyzePath(ctx, a.SessionID, a.Path, service.FrameMeta{
		VehicleType: a.VehicleType,
		Location:    a.Location,
		RedLight:    a.RedLight,
		Annotate:    a.Annotate,
	})
}

type extractRegionArgs struct {
	Path   string `json:"path"`
	X1     int    `json:"x1"`
	Y1     int    `json:"y1"`
	X2     int    `json:"x2"`
	Y2     int    `json:"y2"`
	Margin *int   `json:"margin"`
}

func (s *Server) handleExtractRegion(args json.RawMessage) (interface{}, error) {
	var a extractRegionArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	margin := analyzer.DefaultRiderMargin
	if a.Margin != nil {
		margin = *a.Margin
	}
	return s.svc.ExtractRegion(a.Path, imaging.Box{X1: a.X1, Y1: a.Y1, X2: a.X2, Y2: a.Y2}, margin)
}

// === Reporting Handlers ===

func (s *Server) handleSessionStats(args json.RawMessage) (interface{}, error) {
	a, err := parseSessionArgs(args)
	if err != nil {
		return nil, err
	}
	return s.svc.Stats(a.SessionID)
}

func (s *Server) handleSessionRecords(args json.RawMessage) (interface{}, error) {
	a, err := parseSessionArgs(args)
	if err != nil {
		return nil, err
	}
	recs, err := s.svc.Records(a.SessionID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"session_id": a.SessionID, "count": len(recs), "records": recs}, nil
}

type exportCSVResult struct {
	SessionID string         `json:"session_id"`
	CSV       string         `json:"csv"`
	Summary   report.Summary `json:"summary"`
}

func (s *Server) handleExportCSV(args json.RawMessage) (interface{}, error) {
	a, err := parseSessionArgs(args)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := s.svc.ExportCSV(a.SessionID, &buf); err != nil {
		return nil, err
	}
	rows, err := report.ReadCSV(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, err
	}
	return exportCSVResult{SessionID: a.SessionID, CSV: buf.String(), Summary: report.Summarize(rows)}, nil
}

func (s *Server) handleSessionAudit(ctx context.Context, args json.RawMessage) (interface{}, error) {
	a, err := parseSessionArgs(args)
	if err != nil {
		return nil, err
	}
	return s.svc.Audit(ctx, a.SessionID)
}
