// Package sysprofile inspects the local machine and recommends queue
// sizes and radio settings for an endpoint.Config, the way a CLI's
// `configure` step would before an operator fills in the rest by hand.
// Every recommendation is advisory: an explicit Config field always
// wins over whatever this package suggests.
package sysprofile

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"rf24mesh/internal/endpoint"
	"rf24mesh/internal/physlink"
)

// Profile is what DetectHost reports about the machine it ran on.
type Profile struct {
	Architecture string
	CPUCount     int
	Constrained  bool // looks like an embedded/single-board target

	RecommendedRXQueueSize int
	RecommendedTXQueueSize int
	RecommendedAppRXSize   int
	RecommendedDataRate    physlink.DataRate
	RecommendedPower       physlink.PowerAmplitude
}

// DetectHost inspects the running machine and returns a Profile with
// its recommendations already filled in.
func DetectHost() *Profile {
	p := &Profile{
		Architecture: runtime.GOARCH,
		CPUCount:     runtime.NumCPU(),
	}
	p.Constrained = detectConstrained(p)
	calculateRecommendations(p)
	return p
}

// detectConstrained guesses whether this looks like a small embedded
// target (single-board computer, microcontroller gateway) rather than
// a general-purpose server: few CPUs, or an ARM-family architecture
// without the core count a desktop/server ARM box would have.
func detectConstrained(p *Profile) bool {
	if p.CPUCount <= 2 {
		return true
	}
	if strings.HasPrefix(p.Architecture, "arm") && p.CPUCount <= 4 {
		return true
	}
	if _, err := os.Stat("/proc/device-tree/model"); err == nil {
		return true
	}
	return false
}

func calculateRecommendations(p *Profile) {
	switch {
	case p.Constrained:
		p.RecommendedRXQueueSize = 5
		p.RecommendedTXQueueSize = 5
		p.RecommendedAppRXSize = 8
		p.RecommendedDataRate = physlink.DataRate250kbps
		p.RecommendedPower = physlink.PAMed
	case p.CPUCount >= 8:
		p.RecommendedRXQueueSize = 32
		p.RecommendedTXQueueSize = 32
		p.RecommendedAppRXSize = 64
		p.RecommendedDataRate = physlink.DataRate2Mbps
		p.RecommendedPower = physlink.PAHigh
	default:
		p.RecommendedRXQueueSize = 16
		p.RecommendedTXQueueSize = 16
		p.RecommendedAppRXSize = 32
		p.RecommendedDataRate = physlink.DataRate1Mbps
		p.RecommendedPower = physlink.PAHigh
	}
}

// Apply fills in any zero-valued queue-size fields of cfg with this
// profile's recommendations, leaving every field the operator already
// set untouched. DataRate and PowerAmplitude are not auto-applied: both
// enums start at a real setting (250kbps, LOW) rather than an "unset"
// sentinel, so a zero value there cannot be told apart from an
// operator's deliberate choice; callers that want the recommended
// radio settings read them from RecommendedDataRate/RecommendedPower
// directly.
func (p *Profile) Apply(cfg *endpoint.Config) {
	if cfg.RXQueueSize <= 0 {
		cfg.RXQueueSize = p.RecommendedRXQueueSize
	}
	if cfg.TXQueueSize <= 0 {
		cfg.TXQueueSize = p.RecommendedTXQueueSize
	}
	if cfg.AppRXQueueSize <= 0 {
		cfg.AppRXQueueSize = p.RecommendedAppRXSize
	}
}

func (p *Profile) String() string {
	kind := "general-purpose"
	if p.Constrained {
		kind = "constrained/embedded"
	}
	return fmt.Sprintf(
		"Host profile: %s, %d CPUs (%s)\nRecommended: rxQueue=%d txQueue=%d appRxQueue=%d dataRate=%s power=%s",
		p.Architecture, p.CPUCount, kind,
		p.RecommendedRXQueueSize, p.RecommendedTXQueueSize, p.RecommendedAppRXSize,
		p.RecommendedDataRate, p.RecommendedPower,
	)
}
