package ws

import (
	"net/http"

	"github.com/gorilla/websocket"

	"nrelay/internal/relay"
)

// Server upgrades HTTP requests to websocket connections and runs one
// Session per connection.
type Server struct {
	ingestor  *relay.Ingestor
	store     relay.EventStore
	registry  *relay.Registry
	validator *relay.Validator
	clock     relay.Clock
	idgen     relay.IDGenerator
	logger    relay.Logger
	cfg       SessionConfig

	upgrader websocket.Upgrader
}

// NewServer wires the websocket front end.
func NewServer(ingestor *relay.Ingestor, store relay.EventStore, registry *relay.Registry, validator *relay.Validator, clock relay.Clock, idgen relay.IDGenerator, logger relay.Logger, cfg SessionConfig) *Server {
	return &Server{
		ingestor:  ingestor,
		store:     store,
		registry:  registry,
		validator: validator,
		clock:     clock,
		idgen:     idgen,
		logger:    logger,
		cfg:       cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Relays are public endpoints; browser clients connect from
			// arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and blocks until the session ends.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	connID := s.idgen.New()
	s.logger.Info("connection opened", "conn", connID, "remote", r.RemoteAddr)

	session := NewSession(connID, conn, s.ingestor, s.store, s.registry, s.validator, s.clock, s.logger, s.cfg)
	session.Run(r.Context())

	s.logger.Info("connection closed", "conn", connID)
}
