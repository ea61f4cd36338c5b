package walletd

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/walletenv/walletenv/internal/netutil"
	"github.com/walletenv/walletenv/internal/process"
	"github.com/walletenv/walletenv/internal/sentinel"
)

const (
	// DefaultNetwork is the chain the daemon runs on when none is configured.
	// Regtest needs no external peers, which is what test fixtures want.
	DefaultNetwork = "regtest"

	// DefaultRPCUser is the basic-auth user written into the daemon config.
	DefaultRPCUser = "walletenv"

	// DefaultPollInterval is the readiness poll cadence.
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultStartTimeout bounds the wait for the RPC endpoint to come up.
	DefaultStartTimeout = 30 * time.Second
)

// ErrInvalidConfig is returned by New when the configuration is unusable.
const ErrInvalidConfig = sentinel.Error("invalid walletd configuration")

// Config describes one daemon launch.
type Config struct {
	// Binary is the daemon executable path. Required.
	Binary string

	// DataDir is the daemon's private data directory. Required; the caller
	// owns its lifetime, walletd only writes into it.
	DataDir string

	// Network selects the chain flag passed to the daemon and the config
	// subdirectory. Empty means DefaultNetwork.
	Network string

	// RPCUser and RPCPassword are the basic-auth credentials written into
	// the daemon config. Empty user means DefaultRPCUser; an empty password
	// is replaced with a random one per launch.
	RPCUser     string
	RPCPassword string

	// ExtraArgs are appended to the daemon command line. The placeholders
	// {rpc_port} and {peer_port} expand to the ports reserved for this
	// launch.
	ExtraArgs []string

	// Ports hands out listener ports. Required.
	Ports *netutil.PortRegistry

	PollInterval time.Duration // zero means DefaultPollInterval
	StartTimeout time.Duration // zero means DefaultStartTimeout
	StopTimeout  time.Duration // zero means process.DefaultStopTimeout

	Logger *slog.Logger
}

// withDefaults validates cfg and returns a copy with defaults applied.
func (c Config) withDefaults() (Config, error) {
	if c.Binary == "" {
		return Config{}, fmt.Errorf("%w: binary must not be empty", ErrInvalidConfig)
	}
	if c.DataDir == "" {
		return Config{}, fmt.Errorf("%w: data dir must not be empty", ErrInvalidConfig)
	}
	if c.Ports == nil {
		return Config{}, fmt.Errorf("%w: port registry must not be nil", ErrInvalidConfig)
	}
	if c.Network == "" {
		c.Network = DefaultNetwork
	}
	if strings.HasPrefix(c.Network, "-") {
		return Config{}, fmt.Errorf("%w: network %q must not start with a dash", ErrInvalidConfig, c.Network)
	}
	if c.RPCUser == "" {
		c.RPCUser = DefaultRPCUser
	}
	if c.RPCPassword == "" {
		c.RPCPassword = uuid.NewString()
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = DefaultStartTimeout
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = process.DefaultStopTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c, nil
}

// expandArgs substitutes the port placeholders in the extra arguments.
func expandArgs(args []string, rpcPort, peerPort int) []string {
	if len(args) == 0 {
		return nil
	}
	out := make([]string, len(args))
	r := strings.NewReplacer(
		"{rpc_port}", fmt.Sprint(rpcPort),
		"{peer_port}", fmt.Sprint(peerPort),
	)
	for i, a := range args {
		out[i] = r.Replace(a)
	}
	return out
}
