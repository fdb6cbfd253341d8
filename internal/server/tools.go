package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func sessionIDProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Session ID returned by traffic_session_create",
	}
}

func sessionOnlySchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"session_id": sessionIDProperty(),
		},
		"required": []string{"session_id"},
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Sessions
		{
			Name:        "traffic_session_create",
			Description: "Start a new analysis session. Records and statistics accumulate per session until it is cleared or destroyed.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "traffic_session_destroy",
			Description: "End a session and drop its records. In-flight analyses on it are discarded.",
			InputSchema: sessionOnlySchema(),
		},
		{
			Name:        "traffic_session_clear",
			Description: "Drop every record of a session and reset its statistics.",
			InputSchema: sessionOnlySchema(),
		},

		// Analysis
		{
			Name:        "traffic_analyze_image",
			Description: "Detect two-wheeler riders in a still image, check each for helmet, license plate and triple riding violations, compute fines and append the records to the session. Video files are not supported.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"session_id": sessionIDProperty(),
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
					"vehicle_type": map[string]interface{}{
						"type":        "string",
						"description": "Vehicle type recorded with each violation (Motorcycle, Scooter, Bike). Default Motorcycle",
					},
					"location": map[string]interface{}{
						"type":        "string",
						"description": "Optional location recorded with each violation",
					},
					"red_light": map[string]interface{}{
						"type":        "boolean",
						"description": "Set when the signal was red for this frame; adds Red Light Jumping to every rider",
						"default":     false,
					},
					"annotate": map[string]interface{}{
						"type":        "boolean",
						"description": "Return the frame with every detection drawn, as base64 PNG",
						"default":     false,
					},
				},
				"required": []string{"session_id", "path"},
			},
		},
		{
			Name:        "traffic_extract_region",
			Description: "Crop a bounding box grown by a margin out of an image and return it as base64-encoded PNG. The box is clamped to the image.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
					"x1": map[string]interface{}{
						"type":        "integer",
						"description": "Left edge X coordinate (0-based)",
					},
					"y1": map[string]interface{}{
						"type":        "integer",
						"description": "Top edge Y coordinate (0-based)",
					},
					"x2": map[string]interface{}{
						"type":        "integer",
						"description": "Right edge X coordinate (exclusive)",
					},
					"y2": map[string]interface{}{
						"type":        "integer",
						"description": "Bottom edge Y coordinate (exclusive)",
					},
					"margin": map[string]interface{}{
						"type":        "integer",
						"description": "Pixels added on every side before clamping. Default 10 (rider crop); plates use 50",
						"default":     10,
					},
				},
				"required": []string{"path", "x1", "y1", "x2", "y2"},
			},
		},

		// Reporting
		{
			Name:        "traffic_session_stats",
			Description: "Get session statistics: records processed, violations, total fines, violation rate and counts per violation type and per date.",
			InputSchema: sessionOnlySchema(),
		},
		{
			Name:        "traffic_session_records",
			Description: "List every violation record of a session in the order it was recorded.",
			InputSchema: sessionOnlySchema(),
		},
		{
			Name:        "traffic_session_export_csv",
			Description: "Export a session as a CSV report with Filename, Violations, Fine_Amount and Timestamp columns.",
			InputSchema: sessionOnlySchema(),
		},
		{
			Name:        "traffic_session_audit",
			Description: "Read a session's records back from the audit store with their count and fine total. Audit rows survive traffic_session_clear. Fails when the server runs without a store.",
			InputSchema: sessionOnlySchema(),
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
