// Package probe serves a read-only HTTP view of the running engine.
package probe

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/mux"
	"github.com/yanun0323/logs"

	"tradecore/internal/core"
	"tradecore/internal/obs"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

const shutdownTimeout = 3 * time.Second

// Engine answers read queries from the dispatcher.
type Engine interface {
	Snapshot(ctx context.Context) (core.Snapshot, error)
	Position(ctx context.Context, symbol string) (schema.PositionRecord, error)
	Order(ctx context.Context, id string) (schema.OrderRecord, bool, error)
}

// Streams reports connection state per channel.
type Streams interface {
	State(ch schema.Channel) schema.ConnState
}

// Server handles probe requests.
type Server struct {
	engine  Engine
	streams Streams
	metrics *obs.Metrics
	router  *mux.Router
	timeout time.Duration
}

// NewServer builds the router. streams and metrics may be nil.
func NewServer(engine Engine, streams Streams, metrics *obs.Metrics) (*Server, error) {
	if engine == nil {
		return nil, exception.ErrNilInstance
	}
	s := &Server{
		engine:  engine,
		streams: streams,
		metrics: metrics,
		router:  mux.NewRouter(),
		timeout: time.Second,
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	s.router.HandleFunc("/orders", s.handleGetOrders).Methods(http.MethodGet)
	s.router.HandleFunc("/orders/{id}", s.handleGetOrder).Methods(http.MethodGet)
	s.router.HandleFunc("/positions", s.handleGetPositions).Methods(http.MethodGet)
	s.router.HandleFunc("/positions/{symbol}", s.handleGetPosition).Methods(http.MethodGet)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return &exception.ConnectionError{Endpoint: addr, Op: "listen", Err: err}
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logs.Errorf("probe: shutdown failed, err: %+v", err)
		}
	}()

	logs.Infof("probe: serving on %s", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Streams: map[string]string{}}
	if s.streams != nil {
		for _, ch := range []schema.Channel{schema.ChannelMarketData, schema.ChannelOrderUpdates} {
			st := s.streams.State(ch)
			resp.Streams[ch.String()] = st.String()
			if st != schema.ConnStateConnected {
				resp.Status = "degraded"
			}
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	snap, err := s.engine.Snapshot(ctx)
	if err != nil {
		resp.Status = "stopped"
		respondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.OpenOrders = snap.Open
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	snap, err := s.engine.Snapshot(ctx)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err)
		return
	}
	out := make([]OrderView, 0, len(snap.Orders))
	for _, rec := range snap.Orders {
		out = append(out, orderView(rec))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	rec, ok, err := s.engine.Order(ctx, id)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err)
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, exception.ErrUnknownOrderReference)
		return
	}
	respondJSON(w, http.StatusOK, orderView(rec))
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	snap, err := s.engine.Snapshot(ctx)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err)
		return
	}
	out := make([]PositionView, 0, len(snap.Positions))
	for _, pos := range snap.Positions {
		out = append(out, positionView(pos))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	pos, err := s.engine.Position(ctx, symbol)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err)
		return
	}
	respondJSON(w, http.StatusOK, positionView(pos))
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		logs.Errorf("probe: encode response failed, err: %+v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, ErrorResponse{Error: err.Error()})
}
