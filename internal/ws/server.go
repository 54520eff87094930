package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rowetechinc/river/internal/bridge"
	"github.com/rowetechinc/river/internal/dash"
	"github.com/rowetechinc/river/internal/decoder"
	"github.com/rowetechinc/river/internal/health"
	"github.com/rowetechinc/river/internal/logging"
	"github.com/rowetechinc/river/internal/serialport"
	"github.com/rowetechinc/river/internal/session"
	"github.com/rowetechinc/river/internal/telemetry"
)

// Controller is the part of bridge.Manager the HTTP layer drives.
type Controller interface {
	ListPorts() ([]serialport.Info, error)
	BaudRates() []int
	Connect(port string, baud int) (session.State, error)
	Disconnect() session.State
	SendBreak() (*decoder.BreakResult, error)
	SendCommand(text string) error
	State() session.State
	Connected() bool
	Plot() telemetry.Snapshot
}

type Server struct {
	ctl            Controller
	broadcaster    *Broadcaster
	board          *dash.Board
	sampler        *health.Sampler
	defaultBaud    int
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	log            zerolog.Logger
}

func NewServer(ctl Controller, broadcaster *Broadcaster, allowedOrigins []string, log zerolog.Logger) *Server {
	s := &Server{
		ctl:            ctl,
		broadcaster:    broadcaster,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		log:            logging.Component(log, "http"),
	}

	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

// SetBoard enables GET /api/dash. Must be called before SetupRoutes.
func (s *Server) SetBoard(b *dash.Board) { s.board = b }

// SetSampler adds process figures to GET /api/health.
func (s *Server) SetSampler(h *health.Sampler) { s.sampler = h }

// SetDefaultBaud is used when a connect request omits the baud rate.
func (s *Server) SetDefaultBaud(baud int) { s.defaultBaud = baud }

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/ports", s.handlePorts)
	mux.HandleFunc("/api/bauds", s.handleBauds)
	mux.HandleFunc("/api/connect", s.handleConnect)
	mux.HandleFunc("/api/disconnect", s.handleDisconnect)
	mux.HandleFunc("/api/break", s.handleBreak)
	mux.HandleFunc("/api/command", s.handleCommand)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/plot", s.handlePlot)
	mux.HandleFunc("/api/dash", s.handleDash)
	mux.HandleFunc("/api/health", s.handleHealth)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}

	c, err := s.broadcaster.AddClient(conn)
	if err != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error())
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
		return
	}
	s.log.Info().Str("remote", r.RemoteAddr).Str("client", c.id).Msg("websocket client connected")

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			s.log.Info().Str("remote", r.RemoteAddr).Str("client", c.id).Msg("websocket client disconnected")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handlePorts(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	ports, err := s.ctl.ListPorts()
	if err != nil {
		s.log.Error().Err(err).Msg("list ports")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ports)
}

func (s *Server) handleBauds(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.ctl.BaudRates())
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json: " + err.Error()})
		return
	}
	if req.Port == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "port is required"})
		return
	}
	if req.Baud == 0 {
		req.Baud = s.defaultBaud
	}

	st, err := s.ctl.Connect(req.Port, req.Baud)
	if err != nil {
		writeJSON(w, statusFor(err), errorResponse{Error: err.Error(), State: st})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	writeJSON(w, http.StatusOK, s.ctl.Disconnect())
}

func (s *Server) handleBreak(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	res, err := s.ctl.SendBreak()
	if err != nil {
		writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
		return
	}
	// A nil result encodes as null.
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json: " + err.Error()})
		return
	}
	if err := s.ctl.SendCommand(req.Command); err != nil {
		writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.ctl.State())
}

func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.ctl.Plot())
}

func (s *Server) handleDash(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if s.board == nil {
		http.Error(w, "dashboard not available", http.StatusServiceUnavailable)
		return
	}
	if name := r.URL.Query().Get("field"); name != "" {
		series, ok := s.board.Series(name)
		if !ok {
			http.Error(w, "unknown field", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, series)
		return
	}
	writeJSON(w, http.StatusOK, s.board.Snapshot())
}

type healthResponse struct {
	Status    string         `json:"status"`
	Connected bool           `json:"connected"`
	Broadcast Stats          `json:"broadcast"`
	Process   *health.Report `json:"process,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	resp := healthResponse{
		Status:    "ok",
		Connected: s.ctl.Connected(),
		Broadcast: s.broadcaster.Stats(),
	}
	if s.sampler != nil {
		rep := s.sampler.Sample()
		resp.Process = &rep
	}
	writeJSON(w, http.StatusOK, resp)
}

// statusFor maps bridge errors onto HTTP status codes.
func statusFor(err error) int {
	var cerr *bridge.ConnectionError
	var terr *bridge.TransportError
	switch {
	case errors.As(err, &cerr), errors.Is(err, bridge.ErrNotConnected):
		return http.StatusConflict
	case errors.As(err, &terr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if len(s.allowedOrigins) > 0 {
		return s.allowedOrigins[origin] || s.allowedHosts[parsed.Host]
	}

	if parsed.Host == r.Host {
		return true
	}
	host := parsed.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// ListenAndServe serves mux on addr until ctx is cancelled, then shuts down
// gracefully.
func ListenAndServe(ctx context.Context, addr string, mux http.Handler, log zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
