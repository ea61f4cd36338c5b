package netutil

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/walletenv/walletenv/internal/sentinel"
)

// ErrPortUnavailable is returned when no free port could be reserved within
// the bounded number of attempts.
const ErrPortUnavailable = sentinel.Error("no free port available")

// maxAllocRetries bounds the attempts to find a port that is not already
// reserved in the registry. Exceeding it means either pathological port
// exhaustion or a reservation leak.
const maxAllocRetries = 20

// PortRegistry tracks ports reserved by this process. The kernel guarantees
// cross-process uniqueness while a listener is open; the registry prevents
// the in-process race where a second caller is handed a port that a first
// caller has already closed its probe listener on but not yet passed to its
// daemon.
//
// One PortRegistry is created per Manager and shared with every instance.
type PortRegistry struct {
	mu    sync.Mutex
	ports map[int]struct{}
	log   *slog.Logger
}

// NewPortRegistry creates an empty registry.
// If logger is nil, slog.Default() is used.
func NewPortRegistry(logger *slog.Logger) *PortRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &PortRegistry{
		ports: make(map[int]struct{}),
		log:   logger,
	}
}

// reserve records a port in the registry. Returns false if already taken.
func (r *PortRegistry) reserve(port int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ports[port]; ok {
		return false
	}
	r.ports[port] = struct{}{}
	return true
}

// Release removes a port from the registry so it can be handed out again.
func (r *PortRegistry) Release(port int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ports, port)
}

// bindKernelPort asks the kernel for a free port that is not already in the
// registry. The returned listener is still open; the caller closes it once
// any other listeners it needs are also open, which guarantees distinct
// assignments. The port stays reserved in the registry until Release.
func (r *PortRegistry) bindKernelPort() (*net.TCPListener, int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, 0, fmt.Errorf("resolve tcp address: %w", err)
	}

	for i := 0; i < maxAllocRetries; i++ {
		l, err := net.ListenTCP("tcp", addr)
		if err != nil {
			return nil, 0, fmt.Errorf("listen on tcp address: %w", err)
		}
		tcpAddr, ok := l.Addr().(*net.TCPAddr)
		if !ok {
			_ = l.Close()
			return nil, 0, fmt.Errorf("unexpected address type: %T", l.Addr())
		}
		if r.reserve(tcpAddr.Port) {
			return l, tcpAddr.Port, nil
		}
		// Already reserved by a concurrent caller; get a different one.
		r.log.Debug("port already reserved, retrying", "port", tcpAddr.Port)
		_ = l.Close()
	}
	return nil, 0, fmt.Errorf("exhausted %d attempts: %w", maxAllocRetries, ErrPortUnavailable)
}

// Allocate reserves a single free port. The caller must Release it when the
// daemon that bound it is stopped.
func (r *PortRegistry) Allocate() (int, error) {
	l, port, err := r.bindKernelPort()
	if err != nil {
		return 0, err
	}
	if closeErr := l.Close(); closeErr != nil {
		r.log.Warn("close listener after port allocation", "port", port, "error", closeErr)
	}
	return port, nil
}

// AllocatePair reserves two distinct free ports, e.g. an RPC port and a peer
// listener port for one daemon instance.
//
// Both listeners are held open before either is closed, so the kernel cannot
// assign the same number twice. The caller must Release each port when done.
func (r *PortRegistry) AllocatePair() (port1, port2 int, err error) {
	l1, p1, err := r.bindKernelPort()
	if err != nil {
		return 0, 0, fmt.Errorf("allocate first port: %w", err)
	}

	l2, p2, err := r.bindKernelPort()
	if err != nil {
		// Close before releasing from the registry, otherwise another
		// goroutine could be handed the port while the listener still
		// holds it.
		if closeErr := l1.Close(); closeErr != nil {
			r.log.Warn("close listener after port allocation", "port", p1, "error", closeErr)
		}
		r.Release(p1)
		return 0, 0, fmt.Errorf("allocate second port: %w", err)
	}

	if closeErr := l1.Close(); closeErr != nil {
		r.log.Warn("close listener after port allocation", "port", p1, "error", closeErr)
	}
	if closeErr := l2.Close(); closeErr != nil {
		r.log.Warn("close listener after port allocation", "port", p2, "error", closeErr)
	}

	return p1, p2, nil
}
