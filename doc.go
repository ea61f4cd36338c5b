// Package walletenv provides ephemeral wallet daemons for integration
// tests, with instance pooling.
//
// walletenv launches Electrum-style wallet daemons in throwaway data
// directories, waits until their JSON-RPC endpoint answers, provisions a
// default wallet, and tears everything down when the test binary is done.
// Instances are created lazily and pooled, so parallel tests share warm
// daemons without sharing state.
//
// # Basic Usage
//
//	import "github.com/walletenv/walletenv"
//
//	ctx := context.Background()
//
//	mgr := walletenv.NewManager()
//	if err := mgr.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Shutdown()
//
//	inst, err := mgr.Acquire(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Release() // Returns nil on success; safe to ignore in defer
//
//	raw, err := inst.Call(ctx, "version", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Executable Resolution
//
// The daemon executable is resolved in order from the WithExecutable
// option, the WALLETENV_EXE environment variable, the download cache, and
// finally a checksum-verified download (when enabled via WithDownload).
//
// # Parallel Testing
//
// Instances are created on demand up to the configured pool size. Each
// acquired instance has its own data directory, ports, and wallet, so
// parallel tests never observe each other's state:
//
//	for i := 0; i < 10; i++ {
//	    t.Run(fmt.Sprintf("test-%d", i), func(t *testing.T) {
//	        t.Parallel()
//	        inst, err := mgr.Acquire(ctx)
//	        if err != nil {
//	            t.Fatal(err)
//	        }
//	        defer inst.Release()
//	        // Talk to inst.Call / inst.RPCURL...
//	    })
//	}
package walletenv
