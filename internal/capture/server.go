package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"portfolio_exporter/internal/core"
	"portfolio_exporter/internal/export"
	apperrors "portfolio_exporter/pkg/errors"
)

var (
	captureActiveConnections = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "capture_active_connections",
		Help: "Current number of connected interceptor clients",
	}, []string{"endpoint"})

	captureRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "capture_rejected_total",
		Help: "Total number of rejected capture connections",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(captureActiveConnections)
	prometheus.MustRegister(captureRejectedTotal)
}

// Exporter assembles an export artifact for a query.
type Exporter interface {
	Export(ctx context.Context, q export.Query) (*export.Artifact, error)
}

// Server is the capture endpoint: interceptor clients connect over
// websocket and push observed network responses; the UI downloads export
// artifacts over plain HTTP.
type Server struct {
	hub      *Hub
	ingestor core.IIngestor
	exporter Exporter
	srv      *http.Server
	logger   core.ILogger
	upgrader websocket.Upgrader
	mu       sync.Mutex

	allowedOrigins []string
	production     bool

	maxConnections int
	connSemaphore  chan struct{}

	rateLimitEnabled bool
	ipLimiters       sync.Map // map[string]*rate.Limiter
	rateLimit        rate.Limit
	rateBurst        int
}

func NewServer(hub *Hub, ingestor core.IIngestor, exporter Exporter, logger core.ILogger, allowedOrigins []string) *Server {
	s := &Server{
		hub:              hub,
		ingestor:         ingestor,
		exporter:         exporter,
		logger:           logger.WithField("component", "capture_server"),
		allowedOrigins:   allowedOrigins,
		maxConnections:   64,
		connSemaphore:    make(chan struct{}, 64),
		rateLimitEnabled: true,
		rateLimit:        10.0,
		rateBurst:        20,
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	return s
}

// checkOrigin validates the websocket origin against the whitelist.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		s.logger.Warn("Rejected capture connection with missing Origin header",
			"remote_addr", r.RemoteAddr)
		return false
	}

	parsedOrigin, err := url.Parse(origin)
	if err != nil {
		s.logger.Warn("Rejected capture connection with invalid Origin",
			"origin", origin, "error", err)
		return false
	}
	originStr := parsedOrigin.Scheme + "://" + parsedOrigin.Host

	for _, allowed := range s.allowedOrigins {
		if allowed == "*" {
			if s.production {
				s.logger.Warn("Rejected wildcard origin in production mode",
					"origin", origin, "remote_addr", r.RemoteAddr)
				captureRejectedTotal.WithLabelValues("invalid_origin").Inc()
				return false
			}
			s.logger.Warn("Capture connection allowed via wildcard origin (insecure for production)",
				"origin", origin, "remote_addr", r.RemoteAddr)
			return true
		}
		if originStr == allowed {
			return true
		}
	}

	s.logger.Warn("Rejected capture connection from unauthorized origin",
		"origin", origin, "remote_addr", r.RemoteAddr, "allowed_origins", s.allowedOrigins)
	captureRejectedTotal.WithLabelValues("invalid_origin").Inc()
	return false
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.mu.Lock()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/export", s.handleExport)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	s.mu.Unlock()

	s.logger.Info("Starting capture server", "addr", addr)

	errChan := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return s.Stop(context.Background())
	}
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv == nil {
		return nil
	}
	s.logger.Info("Stopping capture server")
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Rate limits apply before the upgrade consumes resources.
	if s.rateLimitEnabled {
		ip := s.getRemoteIP(r)
		if !s.getIPLimiter(ip).Allow() {
			s.logger.Warn("IP rate limit exceeded", "ip", ip)
			captureRejectedTotal.WithLabelValues("rate_limit").Inc()
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
	}

	select {
	case s.connSemaphore <- struct{}{}:
		captureActiveConnections.WithLabelValues(r.URL.Path).Inc()
		defer func() {
			<-s.connSemaphore
			captureActiveConnections.WithLabelValues(r.URL.Path).Dec()
		}()
	default:
		s.logger.Warn("Max capture connections reached")
		captureRejectedTotal.WithLabelValues("connection_limit").Inc()
		http.Error(w, "Server busy", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	clientID := uuid.New().String()
	client := NewClient(clientID)
	s.hub.Register(client)
	s.logger.Info("Capture client connected", "client_id", clientID, "remote_addr", r.RemoteAddr)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		s.writePump(conn, client)
	}()
	go func() {
		defer wg.Done()
		s.readPump(conn, client)
	}()

	wg.Wait()

	s.hub.Unregister(client)
	conn.Close()
	s.logger.Info("Capture client disconnected", "client_id", clientID)
}

// writePump sends hub messages to the websocket connection.
func (s *Server) writePump(conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(54 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-client.SendChan():
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				s.logger.Warn("Write error", "client_id", client.id, "error", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes interceptor messages: captured payloads and listing
// resets. A payload that fails to decode is logged and dropped; the
// connection stays up.
func (s *Server) readPump(conn *websocket.Conn, client *Client) {
	defer func() {
		s.hub.Unregister(client)
	}()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("Read error", "client_id", client.id, "error", err)
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		s.handleInbound(client, raw)
	}
}

func (s *Server) handleInbound(client *Client, raw []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.logger.Warn("Dropping undecodable message", "client_id", client.id, "error", err)
		return
	}

	switch msg.Type {
	case TypePayload:
		var payload PayloadData
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			s.logger.Warn("Dropping malformed payload message", "client_id", client.id, "error", err)
			return
		}
		s.ingestor.Ingest(payload.URL, payload.Status, []byte(payload.Body))

	case TypeResetListing:
		s.ingestor.ResetListing()

	default:
		s.logger.Debug("Ignoring unknown message type", "client_id", client.id, "type", msg.Type)
	}
}

// handleExport serves GET /export: it runs a full export for the query
// parameters and returns the artifact as a file download.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q, err := parseExportQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	artifact, err := s.exporter.Export(r.Context(), q)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrNoMatchingPositions):
		http.Error(w, "No positions match the selected filters", http.StatusNotFound)
		return
	case errors.Is(err, apperrors.ErrUnknownExportKind):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	default:
		s.logger.Error("Export failed", "error", err)
		http.Error(w, "Export failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", artifact.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.SuggestedName))
	if artifact.Captured < artifact.Total {
		w.Header().Set("X-Partial-Coverage", fmt.Sprintf("%d/%d", artifact.Captured, artifact.Total))
	}
	_, _ = w.Write([]byte(artifact.Content))
}

func parseExportQuery(r *http.Request) (export.Query, error) {
	values := r.URL.Query()
	q := export.Query{
		Symbol: values.Get("symbol"),
		Kind:   values.Get("kind"),
	}
	if q.Kind == "" {
		q.Kind = export.KindText
	}

	const dateLayout = "2006-01-02"
	if raw := values.Get("start"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return q, fmt.Errorf("invalid start date %q, want YYYY-MM-DD", raw)
		}
		q.StartDate = t
	}
	if raw := values.Get("end"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return q, fmt.Errorf("invalid end date %q, want YYYY-MM-DD", raw)
		}
		q.EndDate = t
	}
	return q, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	response := map[string]interface{}{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
		"time":    time.Now().Unix(),
	}
	json.NewEncoder(w).Encode(response)
}

// ClientCount returns the number of connected interceptor clients.
func (s *Server) ClientCount() int {
	return s.hub.ClientCount()
}

// SetProduction sets the production mode; wildcard origins are refused in
// production.
func (s *Server) SetProduction(prod bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.production = prod
}

// SetMaxConnections updates the maximum number of concurrent connections.
func (s *Server) SetMaxConnections(max int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxConnections = max
	s.connSemaphore = make(chan struct{}, max)
}

// SetRateLimit updates the per-IP connection rate limits.
func (s *Server) SetRateLimit(limit float64, burst int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rateLimit = rate.Limit(limit)
	s.rateBurst = burst
	s.ipLimiters = sync.Map{}
}

func (s *Server) getRemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) getIPLimiter(ip string) *rate.Limiter {
	if val, ok := s.ipLimiters.Load(ip); ok {
		return val.(*rate.Limiter)
	}
	newLimiter := rate.NewLimiter(s.rateLimit, s.rateBurst)
	actual, _ := s.ipLimiters.LoadOrStore(ip, newLimiter)
	return actual.(*rate.Limiter)
}
