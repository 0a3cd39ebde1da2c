package memzero

import "runtime"

// Zero overwrites b. Callers use it on shared secrets, derived keys and
// decoded private keys once they are done with them.
func Zero(b []byte) {
	clear(b)
	runtime.KeepAlive(b)
}
