// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes sync runs as tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/ledger"
	"github.com/starford/cardsync/internal/models"
)

// CardFormatURI is the resource holding CardFormatContract.
const CardFormatURI = "cardsync://card-format"

// Service is the sync service behind the tools.
type Service interface {
	Scan(ctx context.Context, folder string) (*models.Report, error)
	SyncDocument(ctx context.Context, path string) (*models.Report, error)
	DeleteDocument(ctx context.Context, path string) error
	Ping(ctx context.Context) error
	Running() bool
	Runs(ctx context.Context, limit int) ([]ledger.Run, error)
}

// Server wraps the MCP server with sync tools.
type Server struct {
	mcp *server.MCPServer
	svc Service
}

// New creates a new MCP server with all sync tools registered.
func New(svc Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"cardsync",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("scan_vault",
		mcp.WithDescription("Sync every document of a vault folder to Anki. Creates missing cards, "+
			"updates existing ones and writes review feedback back into the documents. "+
			"Returns the run report as JSON."),
		mcp.WithString("folder", mcp.Description("Folder to scan, relative to the vault (empty for the configured target folder)")),
	), s.scanVault)

	s.mcp.AddTool(mcp.NewTool("sync_document",
		mcp.WithDescription("Add or update the card of a single document."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the document (e.g. cards/mitosis.md)")),
	), s.syncDocument)

	s.mcp.AddTool(mcp.NewTool("delete_document",
		mcp.WithDescription("Delete the card of a document in Anki and remove its anki-id. "+
			"The document itself is kept."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the document")),
	), s.deleteDocument)

	s.mcp.AddTool(mcp.NewTool("test_connection",
		mcp.WithDescription("Check that Anki with AnkiConnect is running and reachable."),
	), s.testConnection)

	s.mcp.AddTool(mcp.NewTool("sync_status",
		mcp.WithDescription("Report whether a sync is running and list the most recent runs."),
		mcp.WithNumber("limit", mcp.Description("Number of runs to return (default 10)")),
	), s.syncStatus)

	s.mcp.AddTool(mcp.NewTool("get_card_contract",
		mcp.WithDescription("Returns how documents are turned into cards. "+
			"Call this before writing documents meant for syncing."),
	), s.getCardContract)

	// Resource: card format contract.
	s.mcp.AddResource(
		mcp.NewResource(CardFormatURI, "Card Format Contract",
			mcp.WithResourceDescription("How vault documents map to Anki cards."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readCardFormatResource,
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

func (s *Server) scanVault(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rep, err := s.svc.Scan(ctx, req.GetString("folder", ""))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(rep), nil
}

func (s *Server) syncDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rep, err := s.svc.SyncDocument(ctx, path)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(rep), nil
}

func (s *Server) deleteDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.DeleteDocument(ctx, path); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", path)), nil
}

func (s *Server) testConnection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.svc.Ping(ctx); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText("connected"), nil
}

func (s *Server) syncStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 10)
	if limit <= 0 {
		limit = 10
	}
	runs, err := s.svc.Runs(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"running": s.svc.Running(),
		"runs":    runs,
	}), nil
}

func (s *Server) getCardContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(CardFormatContract), nil
}

func (s *Server) readCardFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      CardFormatURI,
			MIMEType: "text/markdown",
			Text:     CardFormatContract,
		},
	}, nil
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

// toolError turns a sync error into a tool error the model can act on.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrRunInProgress):
		return mcp.NewToolResultError("a sync run is already in progress, try again later")
	case errors.Is(err, apperr.ErrConnectivity):
		return mcp.NewToolResultError("could not connect to Anki: is it running with AnkiConnect installed?")
	case errors.Is(err, apperr.ErrMissingIdentity):
		return mcp.NewToolResultError("document has no anki-id, nothing to delete")
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("not found: " + err.Error())
	}
	return mcp.NewToolResultError(err.Error())
}
