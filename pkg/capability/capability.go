// Package capability detects, once per process, which execution strategies
// the host supports. Every component that branches on coroutine or fork
// support consults this probe; none may probe independently, so the whole
// engine shares a single capability view.
package capability

import (
	"fmt"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"

	cferrors "github.com/coflow-dev/coflow/pkg/common/errors"
)

// Capability identifies a single host execution capability.
type Capability int

const (
	// Coroutines is the cooperative suspend/resume primitive used by the
	// async scheduler, the interval driver, and the queue's preferred
	// strategy.
	Coroutines Capability = iota

	// Fork is the ability to spawn child OS processes for command jobs.
	Fork
)

// String returns the capability name used in errors and logs.
func (c Capability) String() string {
	switch c {
	case Coroutines:
		return "coroutines"
	case Fork:
		return "fork"
	default:
		return fmt.Sprintf("capability(%d)", int(c))
	}
}

// Set is the cached result of a probe.
type Set struct {
	// Coroutines reports whether the cooperative primitive is available.
	Coroutines bool

	// Fork reports whether child processes can be spawned.
	Fork bool
}

// Has returns true if the set includes c.
func (s Set) Has(c Capability) bool {
	switch c {
	case Coroutines:
		return s.Coroutines
	case Fork:
		return s.Fork
	default:
		return false
	}
}

// settings are environment overrides, loaded from the COFLOW_* namespace.
// They exist so deployments and tests can force the queue's fallback
// strategies on hosts where the preferred ones would otherwise win.
type settings struct {
	NoCoroutines bool          `envconfig:"NO_COROUTINES"`
	NoFork       bool          `envconfig:"NO_FORK"`
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"2ms"`
}

var (
	mu       sync.Mutex
	detected *Set
	loaded   settings
)

// Detect returns the host capability set, probing lazily on first use and
// caching the result for the life of the process.
func Detect() Set {
	mu.Lock()
	defer mu.Unlock()
	return detect()
}

func detect() Set {
	if detected != nil {
		return *detected
	}

	// Environment problems degrade to defaults rather than failing the
	// probe; a missing override must never disable the engine.
	if err := envconfig.Process("coflow", &loaded); err != nil {
		loaded = settings{PollInterval: 2 * time.Millisecond}
	}
	if loaded.PollInterval <= 0 {
		loaded.PollInterval = 2 * time.Millisecond
	}

	s := Set{
		Coroutines: !loaded.NoCoroutines,
		Fork:       !loaded.NoFork && forkSupported(),
	}
	detected = &s
	return s
}

// forkSupported reports whether child processes can be spawned and signaled
// the way the fork strategy requires.
func forkSupported() bool {
	if runtime.GOOS == "windows" {
		return false
	}
	_, err := exec.LookPath("sh")
	return err == nil
}

// Has returns true if the host supports c.
func Has(c Capability) bool {
	return Detect().Has(c)
}

// Require returns nil if the host supports c, and an unsupported-capability
// failure otherwise. Callers that receive the failure are expected to fall
// back to the queue's synchronous strategy.
func Require(c Capability) error {
	if Has(c) {
		return nil
	}
	return fmt.Errorf("%s: %w", c, cferrors.ErrUnsupported)
}

// PollInterval returns the engine-wide sleep between polling sweeps,
// configurable via COFLOW_POLL_INTERVAL.
func PollInterval() time.Duration {
	mu.Lock()
	defer mu.Unlock()
	detect()
	return loaded.PollInterval
}

// Reset discards the cached probe so the next Detect re-reads the
// environment. It exists for tests that toggle COFLOW_NO_COROUTINES or
// COFLOW_NO_FORK; production code should never call it.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	detected = nil
	loaded = settings{}
}
