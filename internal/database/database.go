package database

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

// Service wraps the postgres connection pool backing the ledger and the
// match history.
type Service interface {
	Pool() *pgxpool.Pool
	Health() map[string]string
	Close()
}

type service struct {
	pool *pgxpool.Pool
}

// New connects to the database named by DAMAS_DB_URL. Returns nil when the
// variable is unset; the server then falls back to in-memory collaborators.
func New() Service {
	url := os.Getenv("DAMAS_DB_URL")
	if url == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		logrus.Fatalf("Unable to create connection pool: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		logrus.Fatalf("Unable to reach database: %v", err)
	}

	return &service{pool: pool}
}

func (s *service) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	status := map[string]string{}
	if err := s.pool.Ping(ctx); err != nil {
		status["status"] = "down"
		status["error"] = err.Error()
		return status
	}

	stat := s.pool.Stat()
	status["status"] = "up"
	status["total_connections"] = fmt.Sprintf("%d", stat.TotalConns())
	status["idle_connections"] = fmt.Sprintf("%d", stat.IdleConns())
	return status
}

func (s *service) Close() {
	s.pool.Close()
}
