package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"pet-chat/contract"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// TokenVerifier returns the user a bearer token was issued to.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

type ServerOption func(*Server)

// WithTokenVerifier requires a valid ?token= on upgrade, join is then restricted to the token subject.
func WithTokenVerifier(verifier TokenVerifier) ServerOption {
	return func(s *Server) { s.verifier = verifier }
}

func WithTiming(timing Timing) ServerOption {
	return func(s *Server) { s.timing = timing }
}

// WithAllowedOrigins restricts the Origin header accepted on upgrade. "*" accepts any origin.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		allowed := make(map[string]struct{}, len(origins))
		for _, o := range origins {
			allowed[o] = struct{}{}
		}
		s.upgrader.CheckOrigin = func(r *http.Request) bool {
			if _, wildcard := allowed["*"]; wildcard {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		}
	}
}

// Server upgrades HTTP requests to websocket connections.
// Connections live until the peer leaves or ctx, the server lifetime, is canceled.
type Server struct {
	ctx        context.Context
	gateway    *Gateway
	dispatcher contract.IDispatcher
	upgrader   websocket.Upgrader
	verifier   TokenVerifier
	timing     Timing
	log        *slog.Logger
}

func NewServer(ctx context.Context, gateway *Gateway, dispatcher contract.IDispatcher, log *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		ctx:        ctx,
		gateway:    gateway,
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		timing: DefaultTiming(),
		log:    log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var userID string
	if s.verifier != nil {
		subject, err := s.verifier.Verify(r.URL.Query().Get("token"))
		if err != nil {
			s.log.Debug("Websocket upgrade refused", "error", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Not authorized, token failed"}`))
			return
		}
		userID = subject
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the client.
		s.log.Debug("Websocket upgrade failed", "error", err)
		return
	}

	conn := NewConnection(uuid.NewString(), userID, ws, s.timing, s.log)
	s.gateway.Connect(conn.ID(), conn)
	go conn.WritePump(s.ctx)
	go conn.ReadPump(s.ctx, s.dispatcher)
}
