package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"damas-server/internal/database"
)

type Server struct {
	port              int
	db                database.Service
	connectionManager *ConnectionManager
	sessionManager    *SessionManager
	roomManager       *RoomManager
	rateLimiter       *RateLimiter
}

func NewServer() (*Server, *http.Server) {
	port, _ := strconv.Atoi(os.Getenv("PORT"))
	if port == 0 {
		port = 8080
	}

	dbService := database.New()

	var ledger Ledger
	var recorder MatchRecorder
	if dbService != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := EnsureSchema(ctx, dbService.Pool()); err != nil {
			logrus.Fatalf("Failed to ensure database schema: %v", err)
		}
		cancel()
		ledger = NewPgxLedger(dbService.Pool())
		recorder = NewPgxMatchRecorder(dbService.Pool())
	} else {
		logrus.Warn("DAMAS_DB_URL not set; using in-memory ledger (balances reset on restart)")
		ledger = NewMemoryLedger(nil)
		recorder = NewMemoryRecorder()
	}

	s := &Server{
		port:              port,
		db:                dbService,
		connectionManager: NewConnectionManager(),
		sessionManager:    NewSessionManager(),
		rateLimiter:       NewRateLimiter(20, time.Second),
	}
	s.roomManager = NewRoomManager(ledger, recorder, &serverNotifier{server: s})
	if seconds, _ := strconv.Atoi(os.Getenv("DAMAS_GRACE_SECONDS")); seconds > 0 {
		s.roomManager.gracePeriod = time.Duration(seconds) * time.Second
	}
	if seconds, _ := strconv.Atoi(os.Getenv("DAMAS_CLEANUP_SECONDS")); seconds > 0 {
		s.roomManager.cleanupDelay = time.Duration(seconds) * time.Second
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s, httpServer
}

// Shutdown notifies every connected client before the HTTP listener stops.
func (s *Server) Shutdown(ctx context.Context) error {
	msg := ServerMessage{
		Type:    "server_shutdown",
		Payload: ErrorMessage{Message: "Server is shutting down"},
	}
	for _, id := range s.connectionManager.AllConnectionIDs() {
		s.connectionManager.SendToConnection(id, msg)
	}

	// Give the outbox writers a moment to flush.
	select {
	case <-time.After(500 * time.Millisecond):
	case <-ctx.Done():
	}

	if s.db != nil {
		s.db.Close()
	}
	return nil
}
