// Package netutil allocates free localhost TCP ports for daemon instances.
//
// Ports come from the kernel (bind to port 0, read back the assignment) so
// uniqueness holds across processes, and an in-process registry closes the
// window where two concurrent allocations in the same test binary could
// receive the same port after the first listener is closed.
package netutil
