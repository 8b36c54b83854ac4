package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/acrmp/mcp"
	"golang.org/x/time/rate"
)

func createTools(cfg config) ([]mcp.ToolDefinition, error) {
	client := newAPIClient(cfg)

	return []mcp.ToolDefinition{
		{
			Metadata: mcp.Tool{
				Name:        "run_sql_query",
				Description: ptr(sqlQueryDescription),
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: mcp.ToolInputSchemaProperties{
						"sql": map[string]any{
							"type":        "string",
							"description": "The SQL query to execute",
						},
						"integration_id": map[string]any{
							"type":        "string",
							"description": "Optional integration ID. If not provided, uses the default integration",
						},
					},
				},
			},
			Execute:   newRunSQLQueryHandler(client, cfg.defaultIntegrationID),
			RateLimit: rate.NewLimiter(rate.Limit(cfg.queryRateLimit), cfg.queryRateBurst),
		},
		{
			Metadata: mcp.Tool{
				Name:        "run_cube_query",
				Description: ptr(cubeQueryDescription),
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: mcp.ToolInputSchemaProperties{
						"cube_query": map[string]any{
							"type":        "object",
							"description": "The Cube query in JSON format with dimensions, filters, measures, etc.",
						},
						"integration_id": map[string]any{
							"type":        "string",
							"description": "Optional integration ID. If not provided, uses the default integration",
						},
					},
				},
			},
			Execute:   newRunCubeQueryHandler(client),
			RateLimit: rate.NewLimiter(rate.Limit(cfg.queryRateLimit), cfg.queryRateBurst),
		},
	}, nil
}

// ptr returns a pointer to the provided string
func ptr(s string) *string {
	return &s
}

const sqlQueryDescription = `Execute a SQL query on a Definite database integration.

The query runs against the integration named by integration_id, or the
server's default integration when none is given. Results are returned exactly
as the Definite API produces them.`

const cubeQueryDescription = `Execute a Cube query on a Definite Cube integration.

The cube_query object is passed to the API as-is; its recognized sub-fields
are dimensions, filters, measures, timeDimensions, order, and limit.

Example cube_query:
{
  "dimensions": [],
  "filters": [],
  "measures": ["hubspot_deals.win_rate"],
  "timeDimensions": [{
    "dimension": "hubspot_deals.close_date",
    "granularity": "month"
  }],
  "order": [],
  "limit": 2000
}`

// ErrEmptySQL indicates that an empty SQL statement was provided
var ErrEmptySQL = errors.New("sql must not be empty")

// ErrCubeQueryNotObject indicates that cube_query is missing or not an object
var ErrCubeQueryNotObject = errors.New("cube_query is required and must be a JSON object")

// newRunSQLQueryHandler creates a handler for executing SQL queries
func newRunSQLQueryHandler(client *apiClient, defaultIntegrationID string) func(mcp.CallToolRequestParams) (mcp.CallToolResult, error) {
	return func(params mcp.CallToolRequestParams) (mcp.CallToolResult, error) {
		sql, ok := params.Arguments["sql"].(string)
		if !ok {
			return mcp.CallToolResult{}, errors.New("invalid sql parameter type")
		}
		if len(sql) == 0 {
			return mcp.CallToolResult{}, ErrEmptySQL
		}

		payload := map[string]any{"sql": sql}
		integrationID, _ := params.Arguments["integration_id"].(string)
		if integrationID == "" {
			integrationID = defaultIntegrationID
		}
		if integrationID != "" {
			payload["integration_id"] = integrationID
		}

		result, err := client.execute(context.Background(), "/sql", payload)
		if err != nil {
			return mcp.CallToolResult{}, fmt.Errorf("sql query failed: %w", err)
		}

		return jsonResult(result)
	}
}

// newRunCubeQueryHandler creates a handler for executing Cube queries
func newRunCubeQueryHandler(client *apiClient) func(mcp.CallToolRequestParams) (mcp.CallToolResult, error) {
	return func(params mcp.CallToolRequestParams) (mcp.CallToolResult, error) {
		cubeQuery, ok := params.Arguments["cube_query"].(map[string]any)
		if !ok {
			return mcp.CallToolResult{}, ErrCubeQueryNotObject
		}

		payload := map[string]any{"cube_query": cubeQuery}
		if integrationID, _ := params.Arguments["integration_id"].(string); integrationID != "" {
			payload["integration_id"] = integrationID
		}

		result, err := client.execute(context.Background(), "/cube", payload)
		if err != nil {
			return mcp.CallToolResult{}, fmt.Errorf("cube query failed: %w", err)
		}

		return jsonResult(result)
	}
}

// jsonResult serialises a query result into a text content tool result.
func jsonResult(v any) (mcp.CallToolResult, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.CallToolResult{}, fmt.Errorf("failed to marshal response: %w", err)
	}
	return mcp.CallToolResult{
		Content: []any{
			mcp.TextContent{
				Text: string(jsonData),
				Type: "text",
			},
		},
	}, nil
}
