package api

import (
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/nsprotocol/nightshade/pkg/gossip"
	"github.com/nsprotocol/nightshade/pkg/nightshade"
)

// Monitor is the read-only view into a running simulation that the
// status server renders: the per-authority engines and the shared
// commitments map a population of gossip.Task writes into. The
// simulator owns these values; Server never mutates them.
type Monitor struct {
	BlockIndex  uint64
	Engines     []*nightshade.Engine
	Commitments *gossip.Commitments
}

// Server serves read-only simulator status over REST and streams
// consensus events (commits, flagged adversaries) over WebSocket.
type Server struct {
	monitor *Monitor
	router  *mux.Router
	hub     *Hub
	logger  *zap.SugaredLogger
}

// NewServer creates a Server over monitor.
func NewServer(monitor *Monitor, logger *zap.SugaredLogger) *Server {
	s := &Server{
		monitor: monitor,
		router:  mux.NewRouter(),
		hub:     NewHub(),
		logger:  logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/status", s.handleGetStatus).Methods("GET")
	v1.HandleFunc("/commitments", s.handleGetCommitments).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the hub loop and serves addr. It blocks until the HTTP
// server exits.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	})
	handler := c.Handler(s.router)

	if s.logger != nil {
		s.logger.Infow("api_server_starting", "addr", addr)
	}
	return http.ListenAndServe(addr, handler)
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{BlockIndex: s.monitor.BlockIndex}
	for _, e := range s.monitor.Engines {
		st := e.State()
		entry := AuthorityStatus{
			AuthorityID:         int(e.OwnerID),
			Status:              e.Status().String(),
			PrimaryConfidence:   st.BareState.PrimaryConfidence,
			SecondaryConfidence: st.BareState.SecondaryConfidence,
			Endorses:            hex.EncodeToString(st.BareState.Endorses.Hash[:]),
		}
		if c := e.Committed(); c != nil {
			h := hex.EncodeToString(c.Hash[:])
			entry.Committed = &h
		}
		resp.Authorities = append(resp.Authorities, entry)
	}
	respondJSON(w, resp)
}

func (s *Server) handleGetCommitments(w http.ResponseWriter, r *http.Request) {
	snap := s.monitor.Commitments.Snapshot()
	resp := CommitmentsResponse{}
	for owner, rec := range snap {
		resp.Commitments = append(resp.Commitments, CommitmentEntry{
			Owner:  int(owner),
			Author: int(rec.Author),
			Hash:   hex.EncodeToString(rec.Hash[:]),
		})
	}
	respondJSON(w, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast Methods (called from the gossip tasks' OnCommit/OnAdversary callbacks)
// ==============================

// BroadcastCommit pushes a commit event to WebSocket clients subscribed
// to the "commits" channel.
func (s *Server) BroadcastCommit(owner, author nightshade.AuthorityId, hash [32]byte, timestamp int64) {
	event := CommitEvent{
		Type:      "commit",
		Owner:     int(owner),
		Author:    int(author),
		Hash:      hex.EncodeToString(hash[:]),
		Timestamp: timestamp,
	}
	s.hub.BroadcastToChannel("commits", event)
}

// BroadcastAdversary pushes an adversary-flagged event to WebSocket
// clients subscribed to the "adversary" channel.
func (s *Server) BroadcastAdversary(reporter, flagged nightshade.AuthorityId, timestamp int64) {
	event := AdversaryEvent{
		Type:      "adversary",
		Reporter:  int(reporter),
		Flagged:   int(flagged),
		Timestamp: timestamp,
	}
	s.hub.BroadcastToChannel("adversary", event)
}

// ==============================
// Helper Functions
// ==============================

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errMsg string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: errMsg, Message: message})
}
