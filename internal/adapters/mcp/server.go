package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/documind/internal/core/domain"
	"github.com/kirillkom/documind/internal/core/ports"
)

// Deps are the inbound services exposed as MCP tools.
type Deps struct {
	Projects  ports.ProjectService
	Ingestor  ports.DocumentIngestor
	Documents ports.DocumentReader
	Query     ports.DocumentQueryService
	Version   string
}

// NewServer registers the DocuMind tools on a new MCP server.
func NewServer(deps Deps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"documind",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions("DocuMind answers questions from documents uploaded into projects."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("create_project",
			mcp.WithDescription("Create a project that groups documents."),
			mcp.WithString("name", mcp.Description("Project name"), mcp.Required()),
			mcp.WithString("description", mcp.Description("Optional description")),
		),
		createProject(deps),
	)

	s.AddTool(
		mcp.NewTool("upload_document",
			mcp.WithDescription("Upload a local pdf, txt or md file into a project and start processing it."),
			mcp.WithNumber("project_id", mcp.Description("Target project id"), mcp.Required()),
			mcp.WithString("path", mcp.Description("Path of the file to upload"), mcp.Required()),
		),
		uploadDocument(deps),
	)

	s.AddTool(
		mcp.NewTool("document_status",
			mcp.WithDescription("Show a document and its processing status."),
			mcp.WithNumber("document_id", mcp.Description("Document id"), mcp.Required()),
		),
		documentStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("list_documents",
			mcp.WithDescription("List the documents of a project, newest first."),
			mcp.WithNumber("project_id", mcp.Description("Project id"), mcp.Required()),
		),
		listDocuments(deps),
	)

	s.AddTool(
		mcp.NewTool("ask_project",
			mcp.WithDescription("Answer a question using only the completed documents of a project."),
			mcp.WithNumber("project_id", mcp.Description("Project id"), mcp.Required()),
			mcp.WithString("question", mcp.Description("Question to answer"), mcp.Required()),
		),
		askProject(deps),
	)

	return s
}

// ServeStdio runs the server on stdin/stdout until ctx is cancelled.
func ServeStdio(ctx context.Context, s *server.MCPServer) error {
	return server.NewStdioServer(s).Listen(ctx, os.Stdin, os.Stdout)
}

func createProject(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil {
			return mcpError("name is required"), nil
		}
		project, err := deps.Projects.Create(ctx, name, req.GetString("description", ""))
		if err != nil {
			return mcpError(fmt.Sprintf("create project failed: %v", err)), nil
		}
		return mcpJSON(project)
	}
}

func uploadDocument(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectID, ok := requireID(req, "project_id")
		if !ok {
			return mcpError("project_id must be a positive integer"), nil
		}
		path, err := req.RequireString("path")
		if err != nil {
			return mcpError("path is required"), nil
		}

		info, err := os.Stat(path)
		if err != nil {
			return mcpError(fmt.Sprintf("cannot read %s: %v", path, err)), nil
		}
		if info.Size() > domain.MaxUploadBytes {
			return mcpError(fmt.Sprintf("file is %d bytes, limit is %d", info.Size(), domain.MaxUploadBytes)), nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return mcpError(fmt.Sprintf("cannot read %s: %v", path, err)), nil
		}

		doc, err := deps.Ingestor.Upload(ctx, ports.UploadRequest{
			ProjectID: projectID,
			Filename:  filepath.Base(path),
			Data:      data,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("upload failed: %v", err)), nil
		}
		return mcpJSON(doc)
	}
}

func documentStatus(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, ok := requireID(req, "document_id")
		if !ok {
			return mcpError("document_id must be a positive integer"), nil
		}
		doc, err := deps.Documents.GetByID(ctx, id)
		if err != nil {
			return mcpError(fmt.Sprintf("document lookup failed: %v", err)), nil
		}
		return mcpJSON(doc)
	}
}

func listDocuments(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectID, ok := requireID(req, "project_id")
		if !ok {
			return mcpError("project_id must be a positive integer"), nil
		}
		docs, err := deps.Documents.ListByProject(ctx, projectID)
		if err != nil {
			return mcpError(fmt.Sprintf("list documents failed: %v", err)), nil
		}
		if len(docs) == 0 {
			return mcpText("[]"), nil
		}
		return mcpJSON(docs)
	}
}

func askProject(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectID, ok := requireID(req, "project_id")
		if !ok {
			return mcpError("project_id must be a positive integer"), nil
		}
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		answer, err := deps.Query.Answer(ctx, projectID, question)
		if err != nil {
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}
		return mcpJSON(answer)
	}
}

func requireID(req mcp.CallToolRequest, name string) (int64, bool) {
	id := req.GetInt(name, 0)
	if id <= 0 {
		return 0, false
	}
	return int64(id), true
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(out)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
