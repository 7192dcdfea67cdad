// Package dblock serializes integration tests that share one Postgres database
// across test binaries. A TCP listener on a fixed loopback port is the lock.
package dblock

import (
	"net"
	"os"
	"time"
)

const defaultAddr = "127.0.0.1:45433"

// Acquire blocks until this process holds the lock and returns its release func.
// POOLCREDIT_TEST_DB_LOCK overrides the port when the default is taken.
func Acquire() (release func()) {
	addr := os.Getenv("POOLCREDIT_TEST_DB_LOCK")
	if addr == "" {
		addr = defaultAddr
	}
	for {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return func() { _ = ln.Close() }
		}
		time.Sleep(50 * time.Millisecond)
	}
}
