// Package mcp exposes the timer operations as Model Context Protocol tools.
//
// Any MCP host (Claude Desktop, Cursor, Gemini CLI, ...) can start and stop
// Toggl timers and read time statistics by adding toggl-mcp as a server.
//
// Tool profiles allow hosts to load only the tools they need:
//
//	toggl-mcp mcp                          → all 3 tools (default)
//	toggl-mcp mcp --tools=tracking         → start_timer, stop_timer
//	toggl-mcp mcp --tools=reporting        → view_timer_stats
//	toggl-mcp mcp --tools=stop_timer,view_timer_stats → individual tool names
package mcp

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/alanbuscaglia/toggl-mcp/internal/metrics"
	"github.com/alanbuscaglia/toggl-mcp/internal/timer"
	"github.com/alanbuscaglia/toggl-mcp/internal/toggl"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

const (
	ToolStartTimer     = "start_timer"
	ToolStopTimer      = "stop_timer"
	ToolViewTimerStats = "view_timer_stats"
)

// Timer is what the tool handlers call. *timer.Service implements it.
type Timer interface {
	Start(ctx context.Context, p timer.StartParams) (*timer.StartResult, error)
	Stop(ctx context.Context) (*timer.StopResult, error)
	Stats(ctx context.Context, days int) (*timer.Summary, error)
}

// ─── Tool Profiles ───────────────────────────────────────────────────────────

// ProfileTracking contains the tools that change timer state.
var ProfileTracking = map[string]bool{
	ToolStartTimer: true,
	ToolStopTimer:  true,
}

// ProfileReporting contains the read-only tools.
var ProfileReporting = map[string]bool{
	ToolViewTimerStats: true,
}

// Profiles maps profile names to their tool sets.
var Profiles = map[string]map[string]bool{
	"tracking":  ProfileTracking,
	"reporting": ProfileReporting,
}

// ResolveTools takes a comma-separated string of profile names and/or
// individual tool names and returns the set of tool names to register.
// An empty input means "all". Unknown names are ignored.
func ResolveTools(input string) map[string]bool {
	input = strings.TrimSpace(input)
	if input == "" || input == "all" {
		return nil
	}

	result := make(map[string]bool)
	for _, token := range strings.Split(input, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if token == "all" {
			return nil
		}
		if profile, ok := Profiles[token]; ok {
			for tool := range profile {
				result[tool] = true
			}
			continue
		}
		if isKnownTool(token) {
			result[token] = true
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

// ─── Server ──────────────────────────────────────────────────────────────────

const serverInstructions = `toggl-mcp tracks time in the user's Toggl Track account. ` +
	`Use start_timer when the user begins working on something (it needs a short ` +
	`description of the task), stop_timer when they finish or switch tasks, and ` +
	`view_timer_stats to summarize how much time was tracked over the last days. ` +
	`Starting a timer while another one runs lets Toggl decide what happens to the ` +
	`running one; call stop_timer first when the user wants it closed.`

type options struct {
	version string
	log     *zap.Logger
	metrics *metrics.Metrics
}

// Option customizes the MCP server.
type Option func(*options)

// WithVersion sets the version reported in the initialize response.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithLogger enables per-call logging.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithMetrics records every call in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// NewServer creates an MCP server with all tools registered.
func NewServer(t Timer, opts ...Option) *server.MCPServer {
	return NewServerWithTools(t, nil, opts...)
}

// NewServerWithTools creates an MCP server registering only the tools in
// the allowlist. If allowlist is nil, all tools are registered.
func NewServerWithTools(t Timer, allowlist map[string]bool, opts ...Option) *server.MCPServer {
	o := options{version: "dev", log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	srv := server.NewMCPServer(
		"toggl-mcp",
		o.version,
		server.WithToolCapabilities(true),
		server.WithInstructions(serverInstructions),
		server.WithRecovery(),
		server.WithToolHandlerMiddleware(logCalls(o.log.Named("mcp"), o.metrics)),
	)

	registerTools(srv, t, allowlist)
	return srv
}

// shouldRegister returns true if the tool should be registered given the
// allowlist. If allowlist is nil, everything is allowed.
func shouldRegister(name string, allowlist map[string]bool) bool {
	if allowlist == nil {
		return true
	}
	return allowlist[name]
}

// ─── Registry ────────────────────────────────────────────────────────────────

type toolDef struct {
	tool    mcp.Tool
	handler func(Timer) server.ToolHandlerFunc
}

// tools is the ordered registry. Names are part of the host contract.
var tools = []toolDef{
	{
		tool: mcp.NewTool(ToolStartTimer,
			mcp.WithDescription("Start a new Toggl timer for the task the user is working on. Returns the id and start time of the new time entry."),
			mcp.WithString("description",
				mcp.Required(),
				mcp.Description("What is being worked on, e.g. 'Review pull request #42'"),
			),
			mcp.WithNumber("project_id",
				mcp.Description("Toggl project id to file the entry under (optional)"),
				mcp.Min(1),
			),
			mcp.WithArray("tags",
				mcp.Description("Tag names to attach (optional)"),
				mcp.WithStringItems(),
			),
			mcp.WithTitleAnnotation("Start timer"),
			mcp.WithReadOnlyHintAnnotation(false),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithIdempotentHintAnnotation(false),
			mcp.WithOpenWorldHintAnnotation(true),
		),
		handler: handleStartTimer,
	},
	{
		tool: mcp.NewTool(ToolStopTimer,
			mcp.WithDescription("Stop the currently running Toggl timer, if any. Reports the stopped entry and its duration, or that nothing was running."),
			mcp.WithTitleAnnotation("Stop timer"),
			mcp.WithReadOnlyHintAnnotation(false),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithIdempotentHintAnnotation(true),
			mcp.WithOpenWorldHintAnnotation(true),
		),
		handler: handleStopTimer,
	},
	{
		tool: mcp.NewTool(ToolViewTimerStats,
			mcp.WithDescription("Summarize tracked time over the last N days: total, number of entries, average, breakdown by description and project, the running timer and the most recent entries."),
			mcp.WithNumber("days",
				mcp.Description("Number of days to look back (default: 7, at most 3650)"),
				mcp.DefaultNumber(timer.DefaultStatsDays),
				mcp.Min(1),
				mcp.Max(timer.MaxStatsDays),
			),
			mcp.WithTitleAnnotation("View timer stats"),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithDestructiveHintAnnotation(false),
			mcp.WithIdempotentHintAnnotation(true),
			mcp.WithOpenWorldHintAnnotation(true),
		),
		handler: handleViewTimerStats,
	},
}

func isKnownTool(name string) bool {
	for _, d := range tools {
		if d.tool.Name == name {
			return true
		}
	}
	return false
}

func registerTools(srv *server.MCPServer, t Timer, allowlist map[string]bool) {
	for _, d := range tools {
		if shouldRegister(d.tool.Name, allowlist) {
			srv.AddTool(d.tool, d.handler(t))
		}
	}
}

// ─── Handlers ────────────────────────────────────────────────────────────────

func handleStartTimer(t Timer) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		description, err := stringArg(args, "description")
		if err != nil {
			return toolError(err), nil
		}
		projectID, ok, err := int64Arg(args, "project_id")
		if err != nil {
			return toolError(err), nil
		}
		tags, err := stringsArg(args, "tags")
		if err != nil {
			return toolError(err), nil
		}

		p := timer.StartParams{Description: description, Tags: tags}
		if ok {
			p.ProjectID = &projectID
		}
		res, err := t.Start(ctx, p)
		if err != nil {
			return toolError(err), nil
		}
		return mcp.NewToolResultStructured(res, res.Text()), nil
	}
}

func handleStopTimer(t Timer) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := t.Stop(ctx)
		if err != nil {
			return toolError(err), nil
		}
		return mcp.NewToolResultStructured(res, res.Text()), nil
	}
}

func handleViewTimerStats(t Timer) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		days, ok, err := int64Arg(req.GetArguments(), "days")
		if err != nil {
			return toolError(err), nil
		}
		if !ok {
			days = timer.DefaultStatsDays
		}
		if days > timer.MaxStatsDays {
			return toolError(toggl.ValidationError("days must be at most %d, got %d", timer.MaxStatsDays, days)), nil
		}

		sum, err := t.Stats(ctx, int(days))
		if err != nil {
			return toolError(err), nil
		}
		return mcp.NewToolResultStructured(sum, sum.Text()), nil
	}
}

// ─── Errors ──────────────────────────────────────────────────────────────────

// ErrorPayload is the structured content of a failed call.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toolError(err error) *mcp.CallToolResult {
	payload := ErrorPayload{
		Code:    string(toggl.KindOf(err)),
		Message: err.Error(),
	}
	return &mcp.CallToolResult{
		Content:           []mcp.Content{mcp.NewTextContent(payload.String())},
		StructuredContent: payload,
		IsError:           true,
	}
}

// ─── Middleware ──────────────────────────────────────────────────────────────

func logCalls(log *zap.Logger, m *metrics.Metrics) server.ToolHandlerMiddleware {
	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			start := time.Now()
			fields := []zap.Field{
				zap.String("tool", req.Params.Name),
				zap.String("request_id", uuid.NewString()),
			}

			res, err := next(ctx, req)

			elapsed := time.Since(start)
			fields = append(fields, zap.Duration("duration", elapsed))
			switch {
			case err != nil:
				log.Error("tool call failed", append(fields, zap.Error(err))...)
				m.RecordToolCall(req.Params.Name, string(toggl.KindInternal), elapsed)
			case res != nil && res.IsError:
				code := errorCode(res)
				log.Warn("tool call returned error", append(fields, zap.String("code", code))...)
				m.RecordToolCall(req.Params.Name, code, elapsed)
			default:
				log.Info("tool call", fields...)
				m.RecordToolCall(req.Params.Name, "", elapsed)
			}
			return res, err
		}
	}
}

func errorCode(res *mcp.CallToolResult) string {
	if p, ok := res.StructuredContent.(ErrorPayload); ok {
		return p.Code
	}
	return string(toggl.KindInternal)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func stringArg(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, err := cast.ToStringE(raw)
	if err != nil {
		return "", toggl.ValidationError("%s must be a string", key)
	}
	return s, nil
}

// int64Arg accepts JSON numbers and numeric strings. Missing, null and
// blank values report ok=false.
func int64Arg(args map[string]any, key string) (v int64, ok bool, err error) {
	raw, present := args[key]
	if !present || raw == nil {
		return 0, false, nil
	}
	switch x := raw.(type) {
	case bool:
		return 0, true, toggl.ValidationError("%s must be an integer", key)
	case string:
		x = strings.TrimSpace(x)
		if x == "" {
			return 0, false, nil
		}
		// base 10 only: "010" is ten, not octal
		n, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return 0, true, toggl.ValidationError("%s must be an integer, got %q", key, x)
		}
		return n, true, nil
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) || x >= math.MaxInt64 || x < math.MinInt64 {
			return 0, true, toggl.ValidationError("%s must be an integer, got %v", key, x)
		}
		return int64(x), true, nil
	}
	n, err := cast.ToInt64E(raw)
	if err != nil {
		return 0, true, toggl.ValidationError("%s must be an integer", key)
	}
	return n, true, nil
}

func stringsArg(args map[string]any, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	var list []string
	if s, isString := raw.(string); isString {
		list = strings.Split(s, ",")
	} else {
		var err error
		if list, err = cast.ToStringSliceE(raw); err != nil {
			return nil, toggl.ValidationError("%s must be a list of strings", key)
		}
	}
	var out []string
	for _, item := range list {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out, nil
}

func (p ErrorPayload) String() string {
	return fmt.Sprintf("%s: %s", p.Code, p.Message)
}
