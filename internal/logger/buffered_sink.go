package logger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"
)

// DefaultMaxBuffer and DefaultFlushInterval mirror the teacher's
// buffered audit logger: batch a hundred entries or five seconds,
// whichever comes first, so a busy mesh doesn't turn every log line
// into its own SQLite write.
const (
	DefaultMaxBuffer     = 100
	DefaultFlushInterval = 5 * time.Second
)

// BufferedSink batches Entry values into a SQLite table, flushing on a
// ticker or when the buffer fills, whichever happens first.
type BufferedSink struct {
	db            *sql.DB
	buffer        []Entry
	mu            sync.Mutex
	maxBuffer     int
	flushInterval time.Duration
	ticker        *time.Ticker
	stopCh        chan struct{}
}

// EnsureSchema creates the network_log table if it does not already
// exist. Safe to call on every startup.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS network_log (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			level     TEXT NOT NULL,
			message   TEXT NOT NULL,
			fields    TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("logger: ensuring schema: %w", err)
	}
	return nil
}

// NewBufferedSink returns a BufferedSink writing to db. Call Start to
// begin the background flush ticker and Stop to flush a final time and
// halt it.
func NewBufferedSink(db *sql.DB, maxBuffer int, flushInterval time.Duration) *BufferedSink {
	if maxBuffer <= 0 {
		maxBuffer = DefaultMaxBuffer
	}
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	return &BufferedSink{
		db:            db,
		buffer:        make([]Entry, 0, maxBuffer),
		maxBuffer:     maxBuffer,
		flushInterval: flushInterval,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the background flushing goroutine.
func (b *BufferedSink) Start() {
	b.ticker = time.NewTicker(b.flushInterval)
	go func() {
		for {
			select {
			case <-b.ticker.C:
				if err := b.Flush(); err != nil {
					log.Printf("logger: periodic flush: %v", err)
				}
			case <-b.stopCh:
				b.ticker.Stop()
				if err := b.Flush(); err != nil {
					log.Printf("logger: final flush: %v", err)
				}
				return
			}
		}
	}()
}

// Stop signals the flushing goroutine to perform one last flush and
// exit. It does not wait for the goroutine to finish.
func (b *BufferedSink) Stop() {
	close(b.stopCh)
}

// Log appends an entry to the buffer, flushing immediately if this
// push filled it.
func (b *BufferedSink) Log(level, message string, fields map[string]interface{}) {
	entry := Entry{Timestamp: time.Now(), Level: Level(level), Message: message, Fields: fields}

	b.mu.Lock()
	b.buffer = append(b.buffer, entry)
	needFlush := len(b.buffer) >= b.maxBuffer
	b.mu.Unlock()

	if needFlush {
		if err := b.Flush(); err != nil {
			log.Printf("logger: flush on full buffer: %v", err)
		}
	}
}

// Flush writes every buffered entry to SQLite in a single transaction.
func (b *BufferedSink) Flush() error {
	b.mu.Lock()
	if len(b.buffer) == 0 {
		b.mu.Unlock()
		return nil
	}
	entries := make([]Entry, len(b.buffer))
	copy(entries, b.buffer)
	b.buffer = b.buffer[:0]
	b.mu.Unlock()

	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("logger: begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO network_log (timestamp, level, message, fields) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("logger: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		var fieldsJSON []byte
		if len(e.Fields) > 0 {
			fieldsJSON, _ = json.Marshal(e.Fields)
		}
		if _, err := stmt.Exec(e.Timestamp.Unix(), string(e.Level), e.Message, string(fieldsJSON)); err != nil {
			log.Printf("logger: insert entry: %v", err)
			continue
		}
	}
	return tx.Commit()
}
