// Package mcpserver exposes the controller as Model Context Protocol tools
// so agents can call a budget-forced reasoning model over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/flemzord/budgetforce/internal/driver"
	"github.com/flemzord/budgetforce/internal/runs"
	"github.com/flemzord/budgetforce/internal/thinking"
)

// Executor runs controller jobs. *driver.Driver satisfies it.
type Executor interface {
	Execute(ctx context.Context, job driver.Job) driver.Outcome
}

// Config bounds tool arguments.
type Config struct {
	DefaultBudget int
	MaxBudget     int // zero means no cap
}

// Server wraps an MCP server with the think, baseline and get_run tools.
type Server struct {
	mcp    *server.MCPServer
	exec   Executor
	store  runs.Store
	cfg    Config
	logger *slog.Logger
}

// New builds the server. store may be nil, in which case get_run is not
// registered.
func New(exec Executor, store runs.Store, cfg Config, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mcp:    server.NewMCPServer("budgetforce", version, server.WithToolCapabilities(false)),
		exec:   exec,
		store:  store,
		cfg:    cfg,
		logger: logger,
	}

	s.mcp.AddTool(mcp.NewTool("think",
		mcp.WithDescription("Answer a question with a reasoning model whose thinking is forced to a token budget. "+
			"Returns the final answer, the boxed answer if any, and token statistics."),
		mcp.WithString("input", mcp.Required(), mcp.Description("The question to answer.")),
		mcp.WithNumber("budget", mcp.Description(fmt.Sprintf("Thinking-token budget. Default %d.", cfg.DefaultBudget))),
		mcp.WithBoolean("include_thinking", mcp.Description("Include the reasoning segment in the result.")),
	), s.handleRun(runs.ModeThink))

	s.mcp.AddTool(mcp.NewTool("baseline",
		mcp.WithDescription("Answer a question with no budget forcing, letting the model think until it stops."),
		mcp.WithString("input", mcp.Required(), mcp.Description("The question to answer.")),
		mcp.WithBoolean("include_thinking", mcp.Description("Include the reasoning segment in the result.")),
	), s.handleRun(runs.ModeBaseline))

	if store != nil {
		s.mcp.AddTool(mcp.NewTool("get_run",
			mcp.WithDescription("Fetch a stored run by ID, including its iteration events."),
			mcp.WithString("id", mcp.Required(), mcp.Description("Run ID returned by think or baseline.")),
		), s.handleGetRun)
	}
	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// ServeStdio serves JSON-RPC over in and out until ctx is done or in is
// closed.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	if err := stdio.Listen(ctx, in, out); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcpserver: %w", err)
	}
	return nil
}

// runResult is the JSON text returned by think and baseline.
type runResult struct {
	RunID              string                `json:"run_id"`
	Status             runs.Status           `json:"status"`
	Answer             string                `json:"answer"`
	BoxedAnswer        string                `json:"boxed_answer,omitempty"`
	Thinking           string                `json:"thinking,omitempty"`
	ThinkingTokens     int                   `json:"thinking_tokens"`
	IterationCount     int                   `json:"iteration_count"`
	ThinkingStop       thinking.ThinkingStop `json:"thinking_stop"`
	DegradedExtraction bool                  `json:"degraded_extraction,omitempty"`
}

func (s *Server) handleRun(mode runs.Mode) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		input, err := req.RequireString("input")
		if err != nil || input == "" {
			return mcp.NewToolResultError("input is required"), nil
		}
		budget := 0
		if mode == runs.ModeThink {
			budget = req.GetInt("budget", s.cfg.DefaultBudget)
			if budget < 0 {
				return mcp.NewToolResultError(fmt.Sprintf("budget must not be negative, got %d", budget)), nil
			}
			if s.cfg.MaxBudget > 0 && budget > s.cfg.MaxBudget {
				return mcp.NewToolResultError(fmt.Sprintf("budget %d exceeds maximum %d", budget, s.cfg.MaxBudget)), nil
			}
		}

		o := s.exec.Execute(ctx, driver.Job{
			Mode:    mode,
			Request: thinking.Request{Input: input, Budget: budget},
		})
		if o.Err != nil {
			s.logger.Warn("mcpserver: run failed", "run", o.Run.ID, "mode", mode, "error", o.Err)
			return mcp.NewToolResultError(fmt.Sprintf("run %s failed: %v", o.Run.ID, o.Err)), nil
		}

		fa := o.Answer
		res := runResult{
			RunID:              o.Run.ID,
			Status:             o.Run.Status,
			Answer:             fa.AnswerSegment,
			BoxedAnswer:        fa.BoxedAnswer,
			ThinkingTokens:     fa.ThinkingTokenCount,
			IterationCount:     fa.IterationCount,
			ThinkingStop:       fa.ThinkingStop,
			DegradedExtraction: fa.DegradedExtraction,
		}
		if req.GetBool("include_thinking", false) {
			res.Thinking = fa.ThinkingSegment
		}
		return jsonResult(res)
	}
}

func (s *Server) handleGetRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil
	}
	run, err := s.store.Get(ctx, id)
	if errors.Is(err, runs.ErrNotFound) {
		return mcp.NewToolResultError("run not found: " + id), nil
	}
	if err != nil {
		return nil, fmt.Errorf("mcpserver: get run: %w", err)
	}
	return jsonResult(run)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcpserver: marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
