package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/flemzord/companion/internal/session"
	"github.com/flemzord/companion/pkg/app"
)

func mcpCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Expose the companion as an MCP server over stdio",
		Long: `Run a Model Context Protocol server on stdin/stdout so MCP clients can
send messages, read history and run missions. Logs go to stderr.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withApp(cmd, func(ctx context.Context, a *app.App) error {
				stdio := server.NewStdioServer(newMCPServer(a))
				stdio.SetErrorLogger(slog.NewLogLogger(a.Logger.Handler(), slog.LevelError))
				return stdio.Listen(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}
}

// mcpTools implements the MCP tool handlers over an opened App.
type mcpTools struct {
	app *app.App
}

func newMCPServer(a *app.App) *server.MCPServer {
	s := server.NewMCPServer("companion", version, server.WithToolCapabilities(false))
	t := &mcpTools{app: a}

	chatArg := mcp.WithString("chat", mcp.Description("Chat to use (default: main)"))

	s.AddTool(mcp.NewTool("send_message",
		mcp.WithDescription("Send a message to the companion and return its reply. The exchange is added to the chat history."),
		mcp.WithString("message", mcp.Required(), mcp.Description("Message text")),
		chatArg,
	), t.sendMessage)

	s.AddTool(mcp.NewTool("get_history",
		mcp.WithDescription("Return the conversation history of a chat as JSON."),
		mcp.WithNumber("last", mcp.Description("Only return the last n turns")),
		chatArg,
	), t.getHistory)

	s.AddTool(mcp.NewTool("clear_history",
		mcp.WithDescription("Delete the conversation history of a chat."),
		chatArg,
	), t.clearHistory)

	s.AddTool(mcp.NewTool("list_models",
		mcp.WithDescription("List the models offered by the chat's server."),
		chatArg,
	), t.listModels)

	s.AddTool(mcp.NewTool("generate",
		mcp.WithDescription("Send a raw prompt without history or personality."),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("Prompt text")),
		mcp.WithString("model", mcp.Description("Model override")),
		chatArg,
	), t.generate)

	s.AddTool(mcp.NewTool("run_mission",
		mcp.WithDescription("Ask for five short insights on a topic."),
		mcp.WithString("topic", mcp.Required(), mcp.Description("Mission topic")),
		mcp.WithString("model", mcp.Description("Model override")),
	), t.runMission)

	return s
}

func (t *mcpTools) session(req mcp.CallToolRequest) (*session.Manager, error) {
	return t.app.Session(req.GetString("chat", session.ChatMain))
}

func (t *mcpTools) sendMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	msg, err := req.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	m, err := t.session(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	reply, err := m.SendMessage(ctx, msg)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(reply), nil
}

func (t *mcpTools) getHistory(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	m, err := t.session(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	turns := m.History()
	if n := req.GetInt("last", 0); n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return jsonResult(turns)
}

func (t *mcpTools) clearHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	m, err := t.session(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st := m.ClearHistory(ctx)
	return mcp.NewToolResultText(fmt.Sprintf("History of %s cleared. %s", m.Chat(), st)), nil
}

func (t *mcpTools) listModels(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	m, err := t.session(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	models, err := m.FetchAvailableModels(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(strings.Join(models, "\n")), nil
}

func (t *mcpTools) generate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, err := req.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	m, err := t.session(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := m.GenerateWithoutHistory(ctx, prompt, req.GetString("model", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (t *mcpTools) runMission(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	topic, err := req.RequireString("topic")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	m, err := t.app.Missions.Execute(ctx, topic, req.GetString("model", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(m)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
