// Package setup registers toggl-mcp as an MCP server in host applications.
//
//   - Claude Code: runs `claude mcp add --scope user toggl-mcp -- toggl-mcp mcp`
//   - Claude Desktop, Cursor, Gemini CLI: merge an mcpServers entry into the
//     host's JSON settings
//   - OpenCode: merges a local server entry into opencode.json
//
// The API token is never written into host configs; the server reads it
// from its own config file or environment.
package setup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// ServerName is the key used in every host config.
const ServerName = "toggl-mcp"

var (
	runtimeGOOS = runtime.GOOS
	userHomeDir = os.UserHomeDir
	lookPathFn  = exec.LookPath
	runCommand  = func(name string, args ...string) ([]byte, error) {
		return exec.Command(name, args...).CombinedOutput()
	}
	readFileFn          = os.ReadFile
	writeFileFn         = os.WriteFile
	jsonMarshalFn       = json.Marshal
	jsonMarshalIndentFn = json.MarshalIndent
)

// Agent represents a supported MCP host.
type Agent struct {
	Name        string
	Description string
	InstallDir  string // config file, or a note for CLI-managed hosts
}

// Result holds the outcome of an installation.
type Result struct {
	Agent       string
	Destination string
	Files       int
}

// Options controls the server entry written into host configs.
type Options struct {
	Command string // defaults to "toggl-mcp"
	Tools   string // passed as --tools when non-empty
}

func (o Options) command() string {
	if o.Command == "" {
		return ServerName
	}
	return o.Command
}

func (o Options) args() []string {
	args := []string{"mcp"}
	if o.Tools != "" {
		args = append(args, "--tools="+o.Tools)
	}
	return args
}

type jsonHost struct {
	name        string
	description string
	path        func() (string, error)
	blockKey    string
	entry       func(Options) any
}

func mcpServersEntry(o Options) any {
	return map[string]any{"command": o.command(), "args": o.args()}
}

func openCodeEntry(o Options) any {
	return map[string]any{
		"type":    "local",
		"command": append([]string{o.command()}, o.args()...),
		"enabled": true,
	}
}

var jsonHosts = []jsonHost{
	{name: "claude-desktop", description: "Claude Desktop app", path: claudeDesktopConfigPath, blockKey: "mcpServers", entry: mcpServersEntry},
	{name: "cursor", description: "Cursor editor (global MCP config)", path: cursorConfigPath, blockKey: "mcpServers", entry: mcpServersEntry},
	{name: "gemini-cli", description: "Gemini CLI", path: geminiConfigPath, blockKey: "mcpServers", entry: mcpServersEntry},
	{name: "opencode", description: "OpenCode", path: openCodeConfigPath, blockKey: "mcp", entry: openCodeEntry},
}

// SupportedAgents returns the hosts setup knows how to configure.
func SupportedAgents() []Agent {
	agents := []Agent{{
		Name:        "claude-code",
		Description: "Claude Code (registered through the claude CLI)",
		InstallDir:  "managed by claude mcp",
	}}
	for _, h := range jsonHosts {
		dir, err := h.path()
		if err != nil {
			dir = "unknown"
		}
		agents = append(agents, Agent{Name: h.name, Description: h.description, InstallDir: dir})
	}
	return agents
}

// Install registers the server for the given agent.
func Install(agentName string, opts Options) (*Result, error) {
	if agentName == "claude-code" {
		return installClaudeCode(opts)
	}
	for _, h := range jsonHosts {
		if h.name == agentName {
			return installJSON(h, opts)
		}
	}
	return nil, fmt.Errorf("unknown agent: %q (supported: %s)", agentName, strings.Join(agentNames(), ", "))
}

func agentNames() []string {
	names := []string{"claude-code"}
	for _, h := range jsonHosts {
		names = append(names, h.name)
	}
	sort.Strings(names)
	return names
}

// ─── Claude Code ─────────────────────────────────────────────────────────────

func installClaudeCode(opts Options) (*Result, error) {
	claudeBin, err := lookPathFn("claude")
	if err != nil {
		return nil, fmt.Errorf("claude CLI not found in PATH; install Claude Code first: https://docs.anthropic.com/en/docs/claude-code")
	}

	args := append([]string{"mcp", "add", "--scope", "user", ServerName, "--", opts.command()}, opts.args()...)
	out, err := runCommand(claudeBin, args...)
	if err != nil {
		// Re-running setup is fine.
		if !strings.Contains(string(out), "already exists") {
			return nil, fmt.Errorf("claude mcp add failed: %s", strings.TrimSpace(string(out)))
		}
	}

	return &Result{
		Agent:       "claude-code",
		Destination: "claude mcp (user scope)",
		Files:       0,
	}, nil
}

// ─── JSON hosts ──────────────────────────────────────────────────────────────

func installJSON(h jsonHost, opts Options) (*Result, error) {
	path, err := h.path()
	if err != nil {
		return nil, err
	}
	if err := injectMCPServer(path, h.blockKey, h.entry(opts)); err != nil {
		return nil, err
	}
	return &Result{Agent: h.name, Destination: path, Files: 1}, nil
}

// injectMCPServer sets block[ServerName] = entry in the JSON file at path,
// keeping every other key as it was.
func injectMCPServer(path, blockKey string, entry any) error {
	root := map[string]json.RawMessage{}
	data, err := readFileFn(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read config %s: %w", path, err)
	case len(strings.TrimSpace(string(data))) > 0:
		if err := json.Unmarshal(data, &root); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	block := map[string]json.RawMessage{}
	if raw, ok := root[blockKey]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &block); err != nil {
			return fmt.Errorf("parse %s block: %w", blockKey, err)
		}
	}

	entryJSON, err := jsonMarshalFn(entry)
	if err != nil {
		return fmt.Errorf("marshal %s entry: %w", ServerName, err)
	}
	block[ServerName] = entryJSON

	blockJSON, err := jsonMarshalFn(block)
	if err != nil {
		return fmt.Errorf("marshal %s block: %w", blockKey, err)
	}
	root[blockKey] = blockJSON

	out, err := jsonMarshalIndentFn(root, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := writeFileFn(path, append(out, '\n'), 0644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// ─── Platform paths ──────────────────────────────────────────────────────────

func claudeDesktopConfigPath() (string, error) {
	home, err := userHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	switch runtimeGOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Claude", "claude_desktop_config.json"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Claude", "claude_desktop_config.json"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "Claude", "claude_desktop_config.json"), nil
	default:
		return filepath.Join(configHome(home), "Claude", "claude_desktop_config.json"), nil
	}
}

func cursorConfigPath() (string, error) {
	home, err := userHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".cursor", "mcp.json"), nil
}

func geminiConfigPath() (string, error) {
	home, err := userHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".gemini", "settings.json"), nil
}

func openCodeConfigPath() (string, error) {
	home, err := userHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	if runtimeGOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "opencode", "opencode.json"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "opencode", "opencode.json"), nil
	}
	return filepath.Join(configHome(home), "opencode", "opencode.json"), nil
}

func configHome(home string) string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return xdg
	}
	return filepath.Join(home, ".config")
}
