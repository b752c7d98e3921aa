package logger

import (
	"context"
	"fmt"
	"time"

	"go-approvals/internal/config"
	"go-approvals/internal/database"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap/zapcore"
)

// LogEntry holds the data passed from Zap to our worker
type LogEntry struct {
	Level     zapcore.Level
	Message   string
	RequestID string // Approval request the entry relates to, when known
	ActorID   string
	Caller    string // Function name
}

// DBLogWriter handles the async writing
type DBLogWriter struct {
	db      *mongo.Database
	logChan chan LogEntry
	appId   string
}

// NewDBLogWriter initializes the worker
func NewDBLogWriter(mongodb *database.MongodbDB, cfg *config.Config) *DBLogWriter {
	writer := &DBLogWriter{
		db:      mongodb.DB,
		logChan: make(chan LogEntry, 1000), // Buffer 1000 logs
		appId:   cfg.AppId,
	}

	// Start the background worker immediately
	go writer.processLogs()

	return writer
}

// AddLog is called by our Zap hook
func (w *DBLogWriter) AddLog(entry LogEntry) {
	select {
	case w.logChan <- entry:
		// Log pushed to channel
	default:
		// Channel full: drop log or print to stderr to prevent blocking the API
		fmt.Println("DB Log Channel Full! Dropping log:", entry.Message)
	}
}

func (w *DBLogWriter) processLogs() {
	for entry := range w.logChan {
		doc := map[string]interface{}{
			"app_id":     w.appId,
			"level":      entry.Level.String(),
			"message":    entry.Message,
			"caller":     entry.Caller,
			"created_at": time.Now(),
		}
		if entry.RequestID != "" {
			doc["request_id"] = entry.RequestID
		}
		if entry.ActorID != "" {
			doc["actor_id"] = entry.ActorID
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if _, err := w.db.Collection("service_logs").InsertOne(ctx, doc); err != nil {
			// Console core already has the entry; losing the mirror is acceptable.
			fmt.Println("Failed to persist log entry:", err)
		}
		cancel()
	}
}
