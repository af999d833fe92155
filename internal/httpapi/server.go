// Package httpapi is the control-plane HTTP surface a CLI or test
// harness drives an endpoint through: configure/connect/write/read/
// ping/status, plus a WebSocket feed of live mesh events. It never
// reaches into router or connection-manager internals directly — only
// through the accessors internal/endpoint.Endpoint already exposes.
package httpapi

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"rf24mesh/internal/addr"
	"rf24mesh/internal/endpoint"
	"rf24mesh/internal/frame"
	"rf24mesh/internal/meshresult"
	"rf24mesh/internal/netmon"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server wires an Endpoint and an event hub to an HTTP router.
type Server struct {
	ep  *endpoint.Endpoint
	hub *netmon.Hub
	mux *mux.Router
}

// NewServer builds a Server for ep, broadcasting connection and frame
// events on hub. hub may be nil to disable the /events route.
func NewServer(ep *endpoint.Endpoint, hub *netmon.Hub) *Server {
	s := &Server{ep: ep, hub: hub, mux: mux.NewRouter()}
	s.routes()
	return s
}

// Handler returns the http.Handler to pass to an http.Server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/configure", s.handleConfigure).Methods("POST")
	s.mux.HandleFunc("/connect", s.handleConnect).Methods("POST")
	s.mux.HandleFunc("/write", s.handleWrite).Methods("POST")
	s.mux.HandleFunc("/read", s.handleRead).Methods("GET")
	s.mux.HandleFunc("/ping", s.handlePing).Methods("POST")
	s.mux.HandleFunc("/status", s.handleStatus).Methods("GET")
	if s.hub != nil {
		s.mux.HandleFunc("/events", s.handleEvents).Methods("GET")
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, err error) {
	kind, ok := meshresult.KindOf(err)
	if !ok {
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	respondJSON(w, meshresult.HTTPStatus(kind), map[string]string{
		"error": string(kind),
		"detail": err.Error(),
	})
}

func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	var cfg endpoint.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed configure body"})
		return
	}
	if err := s.ep.Configure(cfg); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "configured"})
}

type connectRequest struct {
	TimeoutMS int64 `json:"timeout_ms"`
}

// handleConnect starts an async connect and returns immediately; the
// outcome is observable via GET /status or the /events feed.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	timeout := time.Duration(req.TimeoutMS) * time.Millisecond

	var cb func(meshresult.Kind)
	if s.hub != nil {
		self := s.ep.SelfAddress()
		cb = func(kind meshresult.Kind) {
			s.hub.NotifyBindSite(self, addr.BindSiteParent, 0, string(kind))
		}
	}
	if err := s.ep.ConnectAsync(timeout, cb); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "connecting"})
}

type writeRequest struct {
	Dst     addr.LogicalAddress `json:"dst"`
	Payload []byte              `json:"payload"`
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed write body"})
		return
	}
	id, err := s.ep.Write(req.Dst, req.Payload)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"id": id})
}

// handleRead drains every currently available application packet in
// one call, the way a polling CLI would rather than one round trip
// per packet.
func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	var packets [][]byte
	buf := make([]byte, frame.PayloadWidth)
	for s.ep.PacketAvailable() {
		n, ok := s.ep.Read(buf)
		if !ok {
			break
		}
		packet := make([]byte, n)
		copy(packet, buf[:n])
		packets = append(packets, packet)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"packets": packets})
}

type pingRequest struct {
	Dst       addr.LogicalAddress `json:"dst"`
	TimeoutMS int64               `json:"timeout_ms"`
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	var req pingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed ping body"})
		return
	}
	timeout := time.Duration(req.TimeoutMS) * time.Millisecond
	ok := s.ep.Ping(r.Context(), req.Dst, timeout)
	respondJSON(w, http.StatusOK, map[string]bool{"reachable": ok})
}

var statusSites = []addr.BindSite{
	addr.BindSiteParent,
	addr.BindSiteChild1, addr.BindSiteChild2, addr.BindSiteChild3,
	addr.BindSiteChild4, addr.BindSiteChild5,
}

type bindSiteStatus struct {
	Site string `json:"site"`
	State string `json:"state"`
	Peer string `json:"peer"`
}

type statusResponse struct {
	BindSites    []bindSiteStatus `json:"bind_sites"`
	Misroutes    uint64           `json:"misroutes"`
	Retries      uint64           `json:"retries"`
	TXFailures   uint64           `json:"tx_failures"`
	TXQueueDepth int              `json:"tx_queue_depth"`
	RXQueueDepth int              `json:"rx_queue_depth"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.ep.Stats()
	resp := statusResponse{
		Misroutes:    stats.Misroutes,
		Retries:      stats.Retries,
		TXFailures:   stats.TXFailures,
		TXQueueDepth: stats.TXQueueDepth,
		RXQueueDepth: stats.RXQueueDepth,
	}
	for _, site := range statusSites {
		state, peer := s.ep.BindSiteState(site)
		resp.BindSites = append(resp.BindSites, bindSiteStatus{
			Site:  site.String(),
			State: state.String(),
			Peer:  octal(peer),
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

// octal formats a logical address the way the rest of the mesh logs
// it: an unpadded octal literal with a "0o" prefix.
func octal(a addr.LogicalAddress) string {
	return fmt.Sprintf("0o%o", uint16(a))
}

// handleEvents upgrades the connection and hands it to the hub; a
// slow or gone client is dropped by the hub on its next failed write,
// so this handler only needs to keep reading until the client hangs
// up or errors out.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("httpapi: websocket upgrade error: %v", err)
		return
	}
	s.hub.Register(conn)
	go func() {
		defer s.hub.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("httpapi: websocket read error: %v", err)
				}
				break
			}
		}
	}()
}
