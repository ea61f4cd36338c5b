// Package locator resolves the wallet daemon executable used by test
// environments. Resolution tries, in order, an explicitly configured path,
// the WALLETENV_EXE environment variable, a previously downloaded copy in
// the cache directory, and finally a checksum-verified download. Concurrent
// test binaries sharing one cache directory coordinate through a file lock
// so the download happens at most once.
package locator
