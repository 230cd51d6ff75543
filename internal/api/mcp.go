package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates an MCP server exposing the chat session as tools.
func NewMCPServer(svc *Service, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"ollachat",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("ollachat: chat with a local Ollama model. Messages sent here share one conversation."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("list_models",
			mcp.WithDescription("List the models installed on the local Ollama server."),
		),
		mcpListModels(svc),
	)

	s.AddTool(
		mcp.NewTool("send_message",
			mcp.WithDescription("Send a user message in the current conversation and return the full model reply."),
			mcp.WithString("message", mcp.Description("The user message"), mcp.Required()),
		),
		mcpSendMessage(svc),
	)

	s.AddTool(
		mcp.NewTool("reset_chat",
			mcp.WithDescription("Save the current conversation to history and start a new one."),
		),
		mcpResetChat(svc),
	)

	s.AddTool(
		mcp.NewTool("set_model",
			mcp.WithDescription("Select the model used for subsequent messages."),
			mcp.WithString("model", mcp.Description("Installed model name, e.g. llama3.2:latest"), mcp.Required()),
		),
		mcpSetModel(svc),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"chat://transcript",
			"Chat Transcript",
			mcp.WithResourceDescription("Messages exchanged in the current conversation"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceTranscript(svc),
	)

	return s
}

func mcpListModels(svc *Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		models, err := svc.Models.ListModels(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list models: %v", err)), nil
		}
		b, err := json.Marshal(models)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal models: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSendMessage(svc *Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil || strings.TrimSpace(message) == "" {
			return mcpError("message is required"), nil
		}

		reply, err := svc.Send(ctx, strings.TrimSpace(message), nil)
		if err != nil {
			return mcpError(fmt.Sprintf("send failed: %v", err)), nil
		}
		return mcpText(reply), nil
	}
}

func mcpResetChat(svc *Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		entry, err := svc.Reset()
		if err != nil {
			return mcpError(fmt.Sprintf("reset failed: %v", err)), nil
		}
		if entry.ID == "" {
			return mcpText("Started a new conversation"), nil
		}
		return mcpText(fmt.Sprintf("Saved conversation %s and started a new one", entry.ID)), nil
	}
}

func mcpSetModel(svc *Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		model, err := req.RequireString("model")
		if err != nil {
			return mcpError("model is required"), nil
		}
		if err := svc.SelectModel(ctx, model); err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(fmt.Sprintf("Model set to %s", model)), nil
	}
}

func mcpResourceTranscript(svc *Service) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(svc.Session.Transcript())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal transcript: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
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
