// Package netstore persists a node's identity and bind-site state to
// SQLite so both survive a daemon restart. LoadIdentity and
// LoadBindSites read them back; the daemon reads only the identity at
// startup, and the control plane's /status reports live bind-site
// state, not these records.
package netstore

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"rf24mesh/internal/addr"
	"rf24mesh/internal/conn"
)

// EnsureSchema creates the node_identity and bind_sites tables if they
// do not already exist. Safe to call on every startup.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS node_identity (
			node_id          TEXT PRIMARY KEY,
			logical_address  INTEGER NOT NULL,
			device_name      TEXT NOT NULL DEFAULT '',
			updated_at       INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("netstore: creating node_identity: %w", err)
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS bind_sites (
			node_id        TEXT NOT NULL,
			bind_site      TEXT NOT NULL,
			peer_address   INTEGER NOT NULL DEFAULT 0,
			state          TEXT NOT NULL DEFAULT 'UNBOUND',
			last_seen_unix INTEGER NOT NULL DEFAULT 0,
			missed_ticks   INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (node_id, bind_site)
		)
	`)
	if err != nil {
		return fmt.Errorf("netstore: creating bind_sites: %w", err)
	}
	return nil
}

// Store persists one node's identity and bind-site transitions. Its
// SaveBindSite method satisfies conn.PersistenceSink by shape.
type Store struct {
	db     *sql.DB
	nodeID string
}

// New returns a Store for nodeID, a stable identifier for this
// physical device (hostname or machine ID), distinct from its logical
// mesh address which can change across reconfigurations.
func New(db *sql.DB, nodeID string) *Store {
	return &Store{db: db, nodeID: nodeID}
}

// SaveIdentity upserts this node's current logical address and device
// name.
func (s *Store) SaveIdentity(logicalAddress addr.LogicalAddress, deviceName string) error {
	_, err := s.db.Exec(`
		INSERT INTO node_identity (node_id, logical_address, device_name, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			logical_address=excluded.logical_address,
			device_name=excluded.device_name,
			updated_at=excluded.updated_at
	`, s.nodeID, int(logicalAddress), deviceName, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("netstore: saving identity: %w", err)
	}
	return nil
}

// LoadIdentity returns the most recently saved logical address and
// device name for nodeID, or ok=false if nothing has been saved yet.
func LoadIdentity(db *sql.DB, nodeID string) (logicalAddress addr.LogicalAddress, deviceName string, ok bool) {
	var rawAddr int
	err := db.QueryRow(
		`SELECT logical_address, device_name FROM node_identity WHERE node_id = ?`,
		nodeID,
	).Scan(&rawAddr, &deviceName)
	if err != nil {
		return 0, "", false
	}
	return addr.LogicalAddress(rawAddr), deviceName, true
}

// SaveBindSite upserts one bind site's current state. It satisfies
// conn.PersistenceSink; self is unused beyond sanity since the store
// is already scoped to one node_id.
func (s *Store) SaveBindSite(self addr.LogicalAddress, site addr.BindSite, peer addr.LogicalAddress, state conn.State, lastSeen time.Time, missedTicks int) {
	_, err := s.db.Exec(`
		INSERT INTO bind_sites (node_id, bind_site, peer_address, state, last_seen_unix, missed_ticks)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_id, bind_site) DO UPDATE SET
			peer_address=excluded.peer_address,
			state=excluded.state,
			last_seen_unix=excluded.last_seen_unix,
			missed_ticks=excluded.missed_ticks
	`, s.nodeID, site.String(), int(peer), state.String(), lastSeen.Unix(), missedTicks)
	if err != nil {
		// Persistence is best-effort: a failed write must never block
		// the networking path that triggered it.
		log.Printf("netstore: saving bind site %s: %v", site, err)
	}
}

// BindSiteRecord is one persisted bind site, as loaded by LoadBindSites.
type BindSiteRecord struct {
	Site        string
	PeerAddress addr.LogicalAddress
	State       string
	LastSeen    time.Time
	MissedTicks int
}

// LoadBindSites returns every bind site persisted for nodeID.
func LoadBindSites(db *sql.DB, nodeID string) ([]BindSiteRecord, error) {
	rows, err := db.Query(`
		SELECT bind_site, peer_address, state, last_seen_unix, missed_ticks
		FROM bind_sites WHERE node_id = ?
	`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("netstore: loading bind sites: %w", err)
	}
	defer rows.Close()

	var out []BindSiteRecord
	for rows.Next() {
		var rec BindSiteRecord
		var peer int
		var lastSeenUnix int64
		if err := rows.Scan(&rec.Site, &peer, &rec.State, &lastSeenUnix, &rec.MissedTicks); err != nil {
			return nil, fmt.Errorf("netstore: scanning bind site row: %w", err)
		}
		rec.PeerAddress = addr.LogicalAddress(peer)
		rec.LastSeen = time.Unix(lastSeenUnix, 0)
		out = append(out, rec)
	}
	return out, rows.Err()
}
