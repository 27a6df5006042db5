package health

import (
	"context"
	"database/sql"
	"time"

	"german-ocr/internal/shared/storage/db"
)

// QueueDepth reports how many jobs wait in the queue.
type QueueDepth interface {
	Len() int
}

// Service encapsulates health-related checks.
type Service struct {
	DB          *sql.DB
	Queue       QueueDepth
	PingTimeout time.Duration
}

// Report is the /healthz payload.
type Report struct {
	OK       bool   `json:"ok"`
	Storage  string `json:"storage"`
	Database string `json:"database,omitempty"`
	Queue    int    `json:"queue_depth"`
}

// NewService constructs a new health service.
func NewService(sqlDB *sql.DB, q QueueDepth) *Service {
	return &Service{DB: sqlDB, Queue: q, PingTimeout: 2 * time.Second}
}

// Status checks the database when one is configured.
func (s *Service) Status(ctx context.Context) Report {
	r := Report{OK: true, Storage: "memory"}
	if s == nil {
		return r
	}
	if s.Queue != nil {
		r.Queue = s.Queue.Len()
	}
	if s.DB != nil {
		r.Storage = "postgres"
		r.Database = "up"
		if err := db.Ping(ctx, s.DB, s.PingTimeout); err != nil {
			r.OK = false
			r.Database = "down"
		}
	}
	return r
}
