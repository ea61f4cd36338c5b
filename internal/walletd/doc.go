// Package walletd supervises a single wallet daemon process: it reserves
// listener ports, writes the daemon configuration into the data directory,
// launches the executable, polls the JSON-RPC endpoint until the daemon is
// ready, and provisions the default wallet. Stopping asks the daemon to shut
// down over RPC first and falls back to signals.
package walletd
