// Package server provides the HTTP transport for toggl-mcp.
//
// It serves the MCP streamable-HTTP endpoint at /mcp for hosts that do not
// spawn a stdio process, a /health check, and a small JSON API over the
// same timer operations for scripts and shell hooks.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/alanbuscaglia/toggl-mcp/internal/timer"
	"github.com/alanbuscaglia/toggl-mcp/internal/toggl"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Timer is the set of operations the JSON API exposes.
type Timer interface {
	Start(ctx context.Context, p timer.StartParams) (*timer.StartResult, error)
	Stop(ctx context.Context) (*timer.StopResult, error)
	Stats(ctx context.Context, days int) (*timer.Summary, error)
}

// Options configures a Server.
type Options struct {
	Host       string
	Port       int
	Version    string
	MCP        *mcpserver.MCPServer // nil disables /mcp
	Configured func() bool          // reports whether an API token is set
	Metrics    http.Handler         // nil disables /metrics
	Logger     *zap.Logger
}

type Server struct {
	timer  Timer
	opts   Options
	log    *zap.Logger
	mux    *http.ServeMux
	listen func(network, address string) (net.Listener, error)
	serve  func(net.Listener, http.Handler) error
}

func New(t Timer, opts Options) *Server {
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	srv := &Server{
		timer:  t,
		opts:   opts,
		log:    log.Named("http"),
		listen: net.Listen,
		serve:  http.Serve,
	}
	srv.mux = http.NewServeMux()
	srv.routes()
	return srv
}

func (s *Server) Start() error {
	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	listenFn := s.listen
	if listenFn == nil {
		listenFn = net.Listen
	}
	serveFn := s.serve
	if serveFn == nil {
		serveFn = http.Serve
	}

	ln, err := listenFn("tcp", addr)
	if err != nil {
		return fmt.Errorf("toggl-mcp server: listen %s: %w", addr, err)
	}
	s.log.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))
	return serveFn(ln, s.mux)
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	// Timer
	s.mux.HandleFunc("POST /timer/start", s.handleStart)
	s.mux.HandleFunc("POST /timer/stop", s.handleStop)
	s.mux.HandleFunc("GET /timer/stats", s.handleStats)

	// MCP over streamable HTTP
	if s.opts.MCP != nil {
		s.mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(s.opts.MCP))
	}

	if s.opts.Metrics != nil {
		s.mux.Handle("GET /metrics", s.opts.Metrics)
	}
}

// ─── Handlers ────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	configured := false
	if s.opts.Configured != nil {
		configured = s.opts.Configured()
	}
	jsonResponse(w, http.StatusOK, map[string]any{
		"status":                "ok",
		"service":               "toggl-mcp",
		"version":               s.opts.Version,
		"credential_configured": configured,
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Description string   `json:"description"`
		ProjectID   *int64   `json:"project_id"`
		Tags        []string `json:"tags"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, http.StatusBadRequest, string(toggl.KindValidation), "invalid json: "+err.Error())
		return
	}

	res, err := s.timer.Start(r.Context(), timer.StartParams{
		Description: body.Description,
		ProjectID:   body.ProjectID,
		Tags:        body.Tags,
	})
	if err != nil {
		s.writeError(w, "start", err)
		return
	}
	jsonResponse(w, http.StatusCreated, res)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	res, err := s.timer.Stop(r.Context())
	if err != nil {
		s.writeError(w, "stop", err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", timer.DefaultStatsDays)
	if err != nil {
		jsonError(w, http.StatusBadRequest, string(toggl.KindValidation), "days must be an integer")
		return
	}

	sum, err := s.timer.Stats(r.Context(), days)
	if err != nil {
		s.writeError(w, "stats", err)
		return
	}
	jsonResponse(w, http.StatusOK, sum)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	kind := toggl.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		s.log.Warn("timer request failed", zap.String("op", op), zap.String("code", string(kind)), zap.Error(err))
	}
	jsonError(w, status, string(kind), err.Error())
}

func statusFor(k toggl.Kind) int {
	switch k {
	case toggl.KindValidation:
		return http.StatusBadRequest
	case toggl.KindNotFound:
		return http.StatusNotFound
	case toggl.KindConfig:
		return http.StatusServiceUnavailable
	case toggl.KindAuth, toggl.KindRemote, toggl.KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, status int, code, msg string) {
	jsonResponse(w, status, map[string]string{"code": code, "error": msg})
}

var errBadInt = errors.New("not an integer")

func queryInt(r *http.Request, key string, defaultVal int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errBadInt
	}
	return n, nil
}
