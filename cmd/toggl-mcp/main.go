// toggl-mcp exposes Toggl Track timers to AI assistants over the Model
// Context Protocol.
//
// Usage:
//
//	toggl-mcp mcp [--tools=tracking,reporting]   Start the MCP server (stdio)
//	toggl-mcp serve [port]                       Start the HTTP server (/mcp, /health, /metrics)
//	toggl-mcp check                              Verify the API token and workspace
//	toggl-mcp setup [agent]                      Register the server in an MCP host
//	toggl-mcp version                            Print the version
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/alanbuscaglia/toggl-mcp/internal/config"
	"github.com/alanbuscaglia/toggl-mcp/internal/logging"
	"github.com/alanbuscaglia/toggl-mcp/internal/mcp"
	"github.com/alanbuscaglia/toggl-mcp/internal/metrics"
	httpsrv "github.com/alanbuscaglia/toggl-mcp/internal/server"
	"github.com/alanbuscaglia/toggl-mcp/internal/setup"
	"github.com/alanbuscaglia/toggl-mcp/internal/timer"
	"github.com/alanbuscaglia/toggl-mcp/internal/toggl"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Set via ldflags: -X main.version=v1.2.3
var version = "dev"

var (
	exitFunc = os.Exit

	loadConfig            = config.Load
	newLogger             = logging.New
	newMCPServerWithTools = mcp.NewServerWithTools
	serveMCP              = mcpserver.ServeStdio
	newHTTPServer         = httpsrv.New
	startHTTP             = func(s *httpsrv.Server) error { return s.Start() }
	lookupUser            = func(ctx context.Context, c *toggl.Client) (*toggl.User, error) { return c.Me(ctx) }
	setupInstallAgent     = setup.Install
	setupSupportedAgents  = setup.SupportedAgents
	scanInputLine         = fmt.Scanln
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		exitFunc(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "toggl-mcp",
		Short:        "Toggl Track timers for AI assistants over MCP",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/toggl-mcp/config.yaml)")

	var tools string
	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server over stdio",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cfg, log := mustLoad(configPath)
			defer log.Sync()
			cmdMCP(cfg, log, tools)
		},
	}
	mcpCmd.Flags().StringVar(&tools, "tools", "", "tool profiles or names to register: tracking, reporting, all, or a comma-separated list")

	serveCmd := &cobra.Command{
		Use:   "serve [port]",
		Short: "Start the HTTP server (/mcp, /health, /timer/*)",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg, log := mustLoad(configPath)
			defer log.Sync()
			cmdServe(cfg, log, args)
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the API token and resolve the workspace",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cfg, log := mustLoad(configPath)
			defer log.Sync()
			cmdCheck(cmd.Context(), cfg, log)
		},
	}

	var setupTools string
	setupCmd := &cobra.Command{
		Use:   "setup [agent]",
		Short: "Register toggl-mcp in an MCP host (claude-code, claude-desktop, cursor, gemini-cli, opencode)",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cmdSetup(args, setup.Options{Tools: setupTools})
		},
	}
	setupCmd.Flags().StringVar(&setupTools, "tools", "", "value passed to --tools in the host entry")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("toggl-mcp %s\n", version)
		},
	}

	root.AddCommand(mcpCmd, serveCmd, checkCmd, setupCmd, versionCmd)
	return root
}

// ─── Runtime wiring ──────────────────────────────────────────────────────────

func mustLoad(configPath string) (*config.Config, *zap.Logger) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fatal(err)
	}
	log, err := newLogger(cfg.Log)
	if err != nil {
		fatal(err)
	}
	if cfg.Toggl.APIToken.IsSet() {
		log.Debug("configuration loaded",
			logging.Secret("api_token", cfg.Toggl.APIToken),
			zap.Int64("workspace_id", cfg.Toggl.WorkspaceID),
			zap.String("base_url", cfg.Toggl.BaseURL),
		)
	} else {
		log.Warn("TOGGL_API_TOKEN is not set; every tool call will return config_error")
	}
	return cfg, log
}

type deps struct {
	creds   *toggl.Credentials
	client  *toggl.Client
	timer   *timer.Service
	metrics *metrics.Metrics
}

func newDeps(cfg *config.Config, log *zap.Logger) *deps {
	m := metrics.New()
	creds := toggl.NewCredentials(cfg.Toggl.APIToken.Value(), cfg.Toggl.WorkspaceID)
	client := toggl.NewClient(toggl.Options{
		BaseURL:     cfg.Toggl.BaseURL,
		Credentials: creds,
		Timeout:     cfg.Toggl.Timeout,
		UserAgent:   "toggl-mcp/" + version,
		Logger:      log,
		OnRequest:   m.RecordUpstream,
	})
	return &deps{
		creds:   creds,
		client:  client,
		timer:   timer.New(client, timer.WithLogger(log)),
		metrics: m,
	}
}

// ─── Commands ────────────────────────────────────────────────────────────────

func cmdMCP(cfg *config.Config, log *zap.Logger, tools string) {
	rt := newDeps(cfg, log)
	allowlist := mcp.ResolveTools(tools)

	srv := newMCPServerWithTools(rt.timer, allowlist, mcp.WithVersion(version), mcp.WithLogger(log))
	log.Info("serving MCP over stdio", zap.String("tools", toolsLabel(allowlist)))
	if err := serveMCP(srv, mcpserver.WithErrorLogger(zap.NewStdLog(log))); err != nil {
		fatal(err)
	}
}

func cmdServe(cfg *config.Config, log *zap.Logger, args []string) {
	port := cfg.HTTP.Port
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 && n <= 65535 {
			port = n
		} else {
			log.Warn("ignoring invalid port argument", zap.String("arg", args[0]), zap.Int("port", port))
		}
	}

	rt := newDeps(cfg, log)
	s := newHTTPServer(rt.timer, httpsrv.Options{
		Host:       cfg.HTTP.Host,
		Port:       port,
		Version:    version,
		MCP:        mcp.NewServer(rt.timer, mcp.WithVersion(version), mcp.WithLogger(log), mcp.WithMetrics(rt.metrics)),
		Configured: rt.creds.Configured,
		Metrics:    rt.metrics.Handler(),
		Logger:     log,
	})
	if err := startHTTP(s); err != nil {
		fatal(err)
	}
}

func cmdCheck(ctx context.Context, cfg *config.Config, log *zap.Logger) {
	if ctx == nil {
		ctx = context.Background()
	}
	rt := newDeps(cfg, log)
	if !rt.creds.Configured() {
		fatal(toggl.ErrMissingToken)
	}

	ctx, cancel := context.WithTimeout(ctx, 2*cfg.Toggl.Timeout)
	defer cancel()

	user, err := lookupUser(ctx, rt.client)
	if err != nil {
		fatal(err)
		return
	}
	wid := cfg.Toggl.WorkspaceID
	if wid == 0 {
		wid = user.DefaultWorkspaceID
	}
	if wid == 0 {
		fatal(&toggl.Error{Kind: toggl.KindRemote, Op: "fetch identity", Msg: "account has no default workspace"})
		return
	}

	name := user.Fullname
	if name == "" {
		name = user.Email
	}
	fmt.Printf("Authenticated as %s\n", name)
	fmt.Printf("Workspace: %d\n", wid)
	if user.Timezone != "" {
		fmt.Printf("Timezone: %s\n", user.Timezone)
	}
}

func cmdSetup(args []string, opts setup.Options) {
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		installAgent(args[0], opts)
		return
	}

	agents := setupSupportedAgents()
	fmt.Println("toggl-mcp setup: register the MCP server in your assistant")
	fmt.Println()
	for i, a := range agents {
		fmt.Printf("  [%d] %s - %s\n", i+1, a.Name, a.Description)
		fmt.Printf("      Config: %s\n", a.InstallDir)
	}
	fmt.Print("\nWhich agent? ")

	var input string
	scanInputLine(&input)
	choice, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || choice < 1 || choice > len(agents) {
		fmt.Fprintln(os.Stderr, "Invalid choice.")
		exitFunc(1)
		return
	}
	installAgent(agents[choice-1].Name, opts)
}

func installAgent(name string, opts setup.Options) {
	fmt.Printf("Installing toggl-mcp for %s...\n", name)
	result, err := setupInstallAgent(name, opts)
	if err != nil {
		fatal(err)
		return
	}
	fmt.Printf("Installed toggl-mcp for %s\n", result.Agent)
	fmt.Printf("  -> %s\n", result.Destination)
	fmt.Println("\nSet TOGGL_API_TOKEN in ~/.config/toggl-mcp/config.yaml (toggl.api_token) or the host's environment, then restart the host.")
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func toolsLabel(allowlist map[string]bool) string {
	if allowlist == nil {
		return "all"
	}
	names := make([]string, 0, len(allowlist))
	for name := range allowlist {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "toggl-mcp: %s\n", err)
	exitFunc(1)
}
