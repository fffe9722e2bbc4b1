package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"wsbind/pkg/contracts/domain"
)

// Component names used by the collector. Stable components feed the primary
// hash; volatile ones (network interfaces) feed the secondary hash.
const (
	ComponentCPU      = "cpu_id"
	ComponentHostname = "hostname"
	ComponentOS       = "os"
	ComponentPlatform = "platform"
	ComponentMAC      = "mac_address"
)

// Collector derives the local device's hardware fingerprint with caching
type Collector struct {
	logger        *slog.Logger
	cache         *domain.Fingerprint
	cacheMutex    sync.RWMutex
	cacheExpiry   time.Time
	cacheDuration time.Duration
}

// NewCollector creates a new fingerprint collector
func NewCollector(logger *slog.Logger) *Collector {
	return &Collector{
		logger:        logger,
		cacheDuration: 1 * time.Hour,
	}
}

// Collect derives a fingerprint from the local machine's hardware factors.
// Individual factor failures fall back to a sentinel value rather than
// failing the whole collection.
func (c *Collector) Collect() (domain.Fingerprint, error) {
	c.cacheMutex.RLock()
	if c.cache != nil && time.Now().Before(c.cacheExpiry) {
		cached := *c.cache
		c.cacheMutex.RUnlock()
		return cached, nil
	}
	c.cacheMutex.RUnlock()

	start := time.Now()

	macAddr, err := c.macAddress()
	if err != nil {
		macAddr = "unknown-mac"
		c.logger.Warn("failed to get MAC address, using fallback",
			slog.String("error", err.Error()),
		)
	}

	hostname, err := c.hostname()
	if err != nil {
		hostname = "unknown-host"
		c.logger.Warn("failed to get hostname, using fallback",
			slog.String("error", err.Error()),
		)
	}

	cpuID, err := c.cpuID()
	if err != nil {
		cpuID = "unknown-cpu"
		c.logger.Warn("failed to get CPU ID, using fallback",
			slog.String("error", err.Error()),
		)
	}

	stable := []domain.Component{
		{Name: ComponentCPU, Value: cpuID},
		{Name: ComponentHostname, Value: hostname},
		{Name: ComponentOS, Value: runtime.GOOS},
		{Name: ComponentPlatform, Value: runtime.GOARCH},
	}
	volatile := []domain.Component{
		{Name: ComponentMAC, Value: macAddr},
	}

	fp := domain.Fingerprint{
		PrimaryHash:   HashComponents(stable),
		SecondaryHash: HashComponents(volatile),
		Components:    append(stable, volatile...),
	}

	c.cacheMutex.Lock()
	c.cache = &fp
	c.cacheExpiry = time.Now().Add(c.cacheDuration)
	c.cacheMutex.Unlock()

	c.logger.Info("device fingerprint collected",
		slog.String("primary_hash", fp.PrimaryHash),
		slog.String("hostname", hostname),
		slog.String("os", runtime.GOOS),
		slog.Duration("collection_time", time.Since(start)),
	)

	return fp, nil
}

// ClearCache clears the cached fingerprint
func (c *Collector) ClearCache() {
	c.cacheMutex.Lock()
	defer c.cacheMutex.Unlock()
	c.cache = nil
	c.cacheExpiry = time.Time{}
}

// macAddress retrieves the primary network interface MAC address
func (c *Collector) macAddress() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("failed to get network interfaces: %w", err)
	}

	// Prefer a non-loopback, up interface with a MAC address
	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if mac := iface.HardwareAddr.String(); mac != "" && mac != "00:00:00:00:00:00" {
			return mac, nil
		}
	}

	// Fallback: any interface with a MAC address
	for _, iface := range interfaces {
		if mac := iface.HardwareAddr.String(); mac != "" && mac != "00:00:00:00:00:00" {
			c.logger.Warn("using fallback MAC address",
				slog.String("interface", iface.Name),
			)
			return mac, nil
		}
	}

	return "", fmt.Errorf("no valid MAC address found")
}

// hostname retrieves the normalized machine hostname
func (c *Collector) hostname() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	if hostname == "" {
		return "", fmt.Errorf("hostname is empty")
	}
	return hostname, nil
}

// cpuID retrieves CPU identification information (OS-specific)
func (c *Collector) cpuID() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if procID := os.Getenv("PROCESSOR_IDENTIFIER"); procID != "" {
			return shortHash(procID), nil
		}
		return shortHash(fmt.Sprintf("windows-%s-%s", runtime.GOARCH, os.Getenv("PROCESSOR_ARCHITECTURE"))), nil
	case "linux":
		if data, err := os.ReadFile("/proc/cpuinfo"); err == nil {
			for _, line := range strings.Split(string(data), "\n") {
				if strings.HasPrefix(line, "model name") || strings.HasPrefix(line, "cpu family") {
					return shortHash(line), nil
				}
			}
		}
		return shortHash(fmt.Sprintf("linux-%s", runtime.GOARCH)), nil
	case "darwin":
		info := fmt.Sprintf("darwin-%s", runtime.GOARCH)
		if procType := os.Getenv("HOSTTYPE"); procType != "" {
			info = fmt.Sprintf("darwin-%s-%s", runtime.GOARCH, procType)
		}
		return shortHash(info), nil
	default:
		return shortHash(fmt.Sprintf("%s-%s", runtime.GOOS, runtime.GOARCH)), nil
	}
}

// shortHash normalizes raw factor strings to a fixed-length identifier
func shortHash(raw string) string {
	hash := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(hash[:8])
}
