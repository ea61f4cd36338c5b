package core

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestMain doubles as a fake wallet daemon, mirroring the daemon's startup
// contract: when launched with "daemon" as the first argument it parses
// --dir and the network flag, reads <dir>/<network>/config, and serves a
// minimal JSON-RPC endpoint on the configured port.
func TestMain(m *testing.M) {
	if len(os.Args) > 1 && os.Args[1] == "daemon" {
		runFakeDaemon(os.Args[2:])
		return
	}
	os.Exit(m.Run())
}

// envMode switches the fake daemon into failure modes for startup tests.
const (
	envMode  = "WALLETENV_CORE_TEST_MODE"
	modeHang = "hang"
)

func runFakeDaemon(args []string) {
	if os.Getenv(envMode) == modeHang {
		// A bare select{} would trip the runtime's deadlock detector in a
		// single-goroutine process; sleeping blocks forever without that.
		for {
			time.Sleep(time.Hour)
		}
	}

	var dir, network string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--dir" && i+1 < len(args):
			dir = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--"):
			if network == "" {
				network = strings.TrimPrefix(args[i], "--")
			}
		}
	}

	raw, err := os.ReadFile(filepath.Join(dir, network, "config"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "fake daemon: %v\n", err)
		os.Exit(2)
	}
	var cfg struct {
		RPCPort     int    `json:"rpcport"`
		RPCUser     string `json:"rpcuser"`
		RPCPassword string `json:"rpcpassword"`
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "fake daemon: %v\n", err)
		os.Exit(2)
	}

	stop := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != cfg.RPCUser || pass != cfg.RPCPassword {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req struct {
			ID     uint64          `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		switch req.Method {
		case "version":
			resp["result"] = "4.1.5"
		case "getinfo":
			resp["result"] = map[string]any{"blockchain_height": 0}
		case "create":
			resp["result"] = map[string]any{"msg": "wallet created"}
		case "load_wallet":
			var params struct {
				WalletPath string `json:"wallet_path"`
			}
			_ = json.Unmarshal(req.Params, &params)
			if params.WalletPath != "" {
				_ = os.WriteFile(params.WalletPath, []byte("{}"), 0o600)
			}
			resp["result"] = true
		case "stop":
			resp["result"] = "ok"
			defer close(stop)
		default:
			resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	srv := &http.Server{Addr: fmt.Sprintf("127.0.0.1:%d", cfg.RPCPort), Handler: handler}
	go func() {
		<-stop
		time.Sleep(50 * time.Millisecond)
		os.Exit(0)
	}()
	if err := srv.ListenAndServe(); err != nil {
		fmt.Fprintf(os.Stderr, "fake daemon: %v\n", err)
		os.Exit(2)
	}
}

// fakeDaemonBinary returns the path launched to get the fake daemon above.
func fakeDaemonBinary(t *testing.T) string {
	t.Helper()
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("resolve test binary: %v", err)
	}
	return exe
}
