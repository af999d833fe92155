package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"rf24mesh/internal/addr"
	"rf24mesh/internal/alert"
	"rf24mesh/internal/conn"
	"rf24mesh/internal/endpoint"
	"rf24mesh/internal/httpapi"
	"rf24mesh/internal/logger"
	"rf24mesh/internal/netmon"
	"rf24mesh/internal/netstore"
	"rf24mesh/internal/physaddr"
	"rf24mesh/internal/physlink"
	"rf24mesh/internal/physlink/simlink"
	"rf24mesh/internal/router"
	"rf24mesh/internal/sysprofile"
)

const Version = "1.0.0"

// multiSink fans one log call out to every sink it wraps, so the
// endpoint can log to the journal and the bind-site database at once
// without either side knowing about the other.
type multiSink []endpoint.LogSink

func (m multiSink) Log(level, message string, fields map[string]interface{}) {
	for _, sink := range m {
		sink.Log(level, message, fields)
	}
}

func main() {
	listenAddr := flag.String("listen", "127.0.0.1:8090", "Control-plane HTTP listen address")
	dbPath := flag.String("db", "./rf24netd.db", "Path to the SQLite bind-site/log database")
	logPath := flag.String("log", "./rf24netd.log", "Path to the JSON-line diagnostic log file")
	basePort := flag.Int("sim-base-port", 23000, "Base UDP port for the loopback radio simulator")
	nodeAddr := flag.String("node", "0", "This node's logical address, octal digits (e.g. 11, 521)")
	parentAddr := flag.String("parent", "", "This node's parent logical address; empty for the root")
	mode := flag.String("mode", "static", "Address acquisition mode: static or mesh")
	deviceName := flag.String("name", "", "Human-readable device name")
	channel := flag.Uint("channel", 76, "RF channel, 0-125")
	webhookURL := flag.String("alert-webhook", "", "Webhook URL notified on bind-site EXPIRED/REFUSED (optional)")
	tickInterval := flag.Duration("tick", endpoint.DefaultTickInterval, "Networking tick interval")
	dataRateFlag := flag.String("data-rate", "", "Radio data rate: 250kbps, 1mbps, or 2mbps (default: host-recommended)")
	powerFlag := flag.String("power", "", "Radio power amplitude: low, med, or high (default: host-recommended)")
	flag.Parse()

	// nodeID is this device's stable identity in the bind-site store,
	// distinct from its logical mesh address (which can change across
	// reconfigurations): the operator's device name if given, else the
	// hostname, else a fresh UUID. A UUID is generated anew on every
	// start (nothing reads it back) and printed once to stderr.
	nodeID := *deviceName
	if nodeID == "" {
		if hostname, err := os.Hostname(); err == nil {
			nodeID = hostname
		} else {
			nodeID = uuid.NewString()
			log.Printf("no device name or hostname available; generated node_id %s", nodeID)
		}
	}

	self, err := parseLogicalAddress(*nodeAddr)
	if err != nil {
		log.Fatalf("invalid -node: %v", err)
	}
	var parent addr.LogicalAddress
	if *parentAddr != "" {
		parent, err = parseLogicalAddress(*parentAddr)
		if err != nil {
			log.Fatalf("invalid -parent: %v", err)
		}
	}
	var epMode endpoint.Mode
	switch strings.ToLower(*mode) {
	case "mesh":
		epMode = endpoint.ModeMesh
	case "static":
		epMode = endpoint.ModeStatic
	default:
		log.Fatalf("invalid -mode %q: want static or mesh", *mode)
	}

	db, err := sql.Open("sqlite3", *dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	if err := netstore.EnsureSchema(db); err != nil {
		log.Fatalf("netstore schema: %v", err)
	}
	if err := logger.EnsureSchema(db); err != nil {
		log.Fatalf("logger schema: %v", err)
	}

	stdSink, err := logger.NewStdSink(*logPath)
	if err != nil {
		log.Fatalf("opening log file: %v", err)
	}
	defer stdSink.Close()
	bufSink := logger.NewBufferedSink(db, logger.DefaultMaxBuffer, logger.DefaultFlushInterval)
	bufSink.Start()
	defer bufSink.Stop()
	sink := multiSink{stdSink, bufSink}

	store := netstore.New(db, nodeID)
	if prevAddr, prevName, ok := netstore.LoadIdentity(db, nodeID); ok {
		log.Printf("previously configured as 0o%o (%q); reconfiguring as 0o%o", uint16(prevAddr), prevName, uint16(self))
	}
	if err := store.SaveIdentity(self, *deviceName); err != nil {
		log.Printf("WARNING: saving node identity: %v", err)
	}

	hub := netmon.NewHub()
	go hub.Run()

	notifier := alert.New(alert.Config{WebhookURL: *webhookURL, Enabled: *webhookURL != ""})

	link := simlink.New(*basePort, self)
	derivePhys := func(peer addr.LogicalAddress, pipe int) (physaddr.Address, error) {
		return physaddr.DerivePort(*basePort, peer, pipe)
	}
	guard := router.NewAddressGuard()

	ep := endpoint.New(link, derivePhys, guard)
	ep.AttachLogger(sink)
	ep.SetName(*deviceName)

	profile := sysprofile.DetectHost()
	log.Print(profile.String())

	dataRate, err := parseDataRate(*dataRateFlag, profile.RecommendedDataRate)
	if err != nil {
		log.Fatalf("invalid -data-rate: %v", err)
	}
	power, err := parsePowerAmplitude(*powerFlag, profile.RecommendedPower)
	if err != nil {
		log.Fatalf("invalid -power: %v", err)
	}

	cfg := endpoint.Config{
		Mode:           epMode,
		NodeAddress:    self,
		ParentAddress:  parent,
		DeviceName:     *deviceName,
		RFChannel:      uint8(*channel),
		DataRate:       dataRate,
		PowerAmplitude: power,
		ConnectTimeout: 5 * time.Second,
		LivenessConfig: conn.Config{
			Persist: store,
			Alert:   notifier,
		},
	}
	profile.Apply(&cfg)

	if err := ep.Configure(cfg); err != nil {
		log.Fatalf("configure: %v", err)
	}
	ep.DoAsyncProcessing(*tickInterval)
	defer ep.Close()

	api := httpapi.NewServer(ep, hub)
	srv := &http.Server{
		Addr:         *listenAddr,
		Handler:      api.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("rf24netd %s listening on %s (node 0o%o)", Version, *listenAddr, uint16(self))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("control-plane server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("control-plane server shutdown error: %v", err)
	}
	log.Println("rf24netd stopped")
}

// parseLogicalAddress reads a logical address given as bare octal
// digits (e.g. "521"), the way an operator would read it off a sticker
// on the device, rather than requiring Go's "0o" literal prefix.
func parseLogicalAddress(s string) (addr.LogicalAddress, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0o"), "0O")
	v, err := strconv.ParseUint(s, 8, 16)
	if err != nil {
		return 0, fmt.Errorf("parsing %q as octal: %w", s, err)
	}
	return addr.LogicalAddress(v), nil
}

// parseDataRate maps a -data-rate flag value to a physlink.DataRate,
// falling back to recommended when the flag was left at its default
// empty string.
func parseDataRate(s string, recommended physlink.DataRate) (physlink.DataRate, error) {
	switch strings.ToLower(s) {
	case "":
		return recommended, nil
	case "250kbps":
		return physlink.DataRate250kbps, nil
	case "1mbps":
		return physlink.DataRate1Mbps, nil
	case "2mbps":
		return physlink.DataRate2Mbps, nil
	default:
		return 0, fmt.Errorf("unknown data rate %q", s)
	}
}

// parsePowerAmplitude maps a -power flag value to a
// physlink.PowerAmplitude, falling back to recommended when the flag
// was left at its default empty string.
func parsePowerAmplitude(s string, recommended physlink.PowerAmplitude) (physlink.PowerAmplitude, error) {
	switch strings.ToLower(s) {
	case "":
		return recommended, nil
	case "low":
		return physlink.PALow, nil
	case "med":
		return physlink.PAMed, nil
	case "high":
		return physlink.PAHigh, nil
	default:
		return 0, fmt.Errorf("unknown power amplitude %q", s)
	}
}
