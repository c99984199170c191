package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"slices"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/magefree/mage-duel-server/internal/config"
	"go.uber.org/zap"
)

// WebSocketServer accepts client connections and feeds their commands to a
// Router.
type WebSocketServer struct {
	cfg      config.WebSocketConfig
	hub      *Hub
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader
	http     *http.Server

	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewWebSocketServer creates a server for cfg. Connections live until the
// server is shut down or the peer goes away.
func NewWebSocketServer(cfg config.WebSocketConfig, hub *Hub, router *Router, logger *zap.Logger) *WebSocketServer {
	ctx, cancel := context.WithCancel(context.Background())
	s := &WebSocketServer{
		cfg:     cfg,
		hub:     hub,
		router:  router,
		logger:  logger,
		baseCtx: ctx,
		cancel:  cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Path, s.serveWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.http = &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadTimeout,
	}
	return s
}

// Handler returns the HTTP handler serving the websocket endpoint.
func (s *WebSocketServer) Handler() http.Handler {
	return s.http.Handler
}

// Serve accepts connections on lis until Shutdown is called.
func (s *WebSocketServer) Serve(lis net.Listener) error {
	s.logger.Info("starting WebSocket server",
		zap.String("address", lis.Addr().String()),
		zap.String("path", s.cfg.Path),
	)
	if err := s.http.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and cancels in-flight commands.
func (s *WebSocketServer) Shutdown(ctx context.Context) error {
	s.cancel()
	return s.http.Shutdown(ctx)
}

// checkOrigin allows every origin when none are configured.
func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return slices.Contains(s.cfg.AllowedOrigins, origin) || slices.Contains(s.cfg.AllowedOrigins, u.Host)
}

func (s *WebSocketServer) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(uuid.NewString(), s.hub, conn, s.cfg, s.logger)
	s.hub.register(client)
	s.logger.Info("client connected",
		zap.String("conn_id", client.id),
		zap.String("remote", r.RemoteAddr),
	)

	go client.writePump()

	if userID := r.URL.Query().Get("user_id"); userID != "" {
		s.router.Handle(s.baseCtx, client, ClientMessage{
			Type:    CmdIdentify,
			Payload: identifyJSON(userID),
		})
	}

	go client.readPump(s.baseCtx, s.router.Handle)
}

func identifyJSON(userID string) []byte {
	data, _ := json.Marshal(identifyPayload{UserID: userID})
	return data
}
