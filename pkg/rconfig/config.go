// Package rconfig holds reudp's process-wide configuration: the
// default retransmission timeout and total send-attempt budget,
// clamped on every write and optionally seeded from a YAML file.
// pkg/socket reads a snapshot once, when a Socket is opened without
// an explicit Policy; later changes do not affect sockets that are
// already open.
package rconfig

import (
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	minTimeout = 1 * time.Second
	maxTimeout = 10 * time.Second

	minSendTryCount = 1
	maxSendTryCount = 10

	defaultTimeout      = 3 * time.Second
	defaultSendTryCount = 3
)

// Config is an immutable snapshot of the process-wide settings.
type Config struct {
	Timeout      time.Duration
	SendTryCount uint32
}

type fileFormat struct {
	TimeoutMs    int `yaml:"timeout_ms"`
	SendTryCount int `yaml:"send_try_count"`
}

var (
	mu      sync.Mutex
	current = Config{Timeout: defaultTimeout, SendTryCount: defaultSendTryCount}
	once    sync.Once
)

// Init guards one-time setup; additional calls are no-ops. Call Init
// (or LoadFile) once before any engine is constructed.
func Init() {
	once.Do(func() {})
}

// LoadFile seeds the process-wide config from a YAML file, clamping
// any values that fall outside their valid range. Fields absent from
// the file keep their current value.
func LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "rconfig: read config file")
	}
	var ff fileFormat
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return errors.Wrap(err, "rconfig: parse config file")
	}

	mu.Lock()
	defer mu.Unlock()
	if ff.TimeoutMs > 0 {
		current.Timeout = clampTimeout(time.Duration(ff.TimeoutMs) * time.Millisecond)
	}
	if ff.SendTryCount > 0 {
		current.SendTryCount = clampSendTryCount(uint32(ff.SendTryCount))
	}
	return nil
}

// SetTimeout clamps and sets the default RTO / constant-policy timeout.
func SetTimeout(d time.Duration) {
	mu.Lock()
	defer mu.Unlock()
	current.Timeout = clampTimeout(d)
}

// SetSendTryCount clamps and sets the total transmission-attempt budget.
func SetSendTryCount(n uint32) {
	mu.Lock()
	defer mu.Unlock()
	current.SendTryCount = clampSendTryCount(n)
}

// Snapshot returns the current configuration by value. Callers should
// take one snapshot per send/recv call rather than re-reading fields
// individually, so concurrent setters can't tear a single decision.
func Snapshot() Config {
	mu.Lock()
	defer mu.Unlock()
	return current
}

func clampTimeout(d time.Duration) time.Duration {
	if d < minTimeout {
		return minTimeout
	}
	if d > maxTimeout {
		return maxTimeout
	}
	return d
}

func clampSendTryCount(n uint32) uint32 {
	if n < minSendTryCount {
		return minSendTryCount
	}
	if n > maxSendTryCount {
		return maxSendTryCount
	}
	return n
}
