// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes a converted output tree to LLM clients over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/avlog/internal/recordservice"
)

// LayoutURI identifies the output layout resource.
const LayoutURI = "avlog://output-layout"

// Server wraps the MCP server with avlog tools.
type Server struct {
	mcp    *server.MCPServer
	svc    *recordservice.Service
	layout string
}

// New creates a new MCP server with all avlog tools registered.
func New(svc *recordservice.Service, version string) *Server {
	s := &Server{svc: svc, layout: OutputLayout(svc.AggregateName())}

	s.mcp = server.NewMCPServer(
		"avlog",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_hours",
		mcp.WithDescription("List the hour buckets of the output tree with their record counts."),
	), s.listHours)

	s.mcp.AddTool(mcp.NewTool("list_records",
		mcp.WithDescription("List the record files in one hour bucket."),
		mcp.WithNumber("hour", mcp.Required(), mcp.Description("Hour bucket, 0-23")),
	), s.listRecords)

	s.mcp.AddTool(mcp.NewTool("read_record",
		mcp.WithDescription("Read one record document."),
		mcp.WithNumber("hour", mcp.Required(), mcp.Description("Hour bucket, 0-23")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Record file name, e.g. 09:30:00.000.json")),
	), s.readRecord)

	s.mcp.AddTool(mcp.NewTool("read_frames",
		mcp.WithDescription("Read the aggregate document holding every decoded frame in capture order."),
	), s.readFrames)

	s.mcp.AddTool(mcp.NewTool("query_records",
		mcp.WithDescription("Find records by timestamp range. Requires the record catalog."),
		mcp.WithString("from", mcp.Description("Inclusive lower bound, RFC 3339 (optional)")),
		mcp.WithString("to", mcp.Description("Exclusive upper bound, RFC 3339 (optional)")),
		mcp.WithNumber("limit", mcp.Description("Max results, default 100")),
	), s.queryRecords)

	s.mcp.AddResource(
		mcp.NewResource(LayoutURI, "Output Layout",
			mcp.WithResourceDescription("How a conversion run lays out frames and records on disk."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readLayoutResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listHours(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hours, err := s.svc.Hours(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(hours), nil
}

func (s *Server) listRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hour, err := req.RequireInt("hour")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entries, err := s.svc.Records(ctx, hour)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("hour %d: %v", hour, err)), nil
	}
	return jsonResult(entries), nil
}

func (s *Server) readRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hour, err := req.RequireInt("hour")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	detail, err := s.svc.Record(ctx, hour, name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%d/%s: %v", hour, name, err)), nil
	}
	return mcp.NewToolResultText(string(detail.Record)), nil
}

func (s *Server) readFrames(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := s.svc.Frames(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(raw)), nil
}

func (s *Server) queryRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var from, to time.Time
	var err error
	if v := req.GetString("from", ""); v != "" {
		if from, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return mcp.NewToolResultError("from: " + err.Error()), nil
		}
	}
	if v := req.GetString("to", ""); v != "" {
		if to, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return mcp.NewToolResultError("to: " + err.Error()), nil
		}
	}
	rows, err := s.svc.Query(ctx, from, to, req.GetInt("limit", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rows), nil
}

func (s *Server) readLayoutResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      LayoutURI,
			MIMEType: "text/markdown",
			Text:     s.layout,
		},
	}, nil
}
