package realtime

// Listener is one live subscriber. Implementations must make Emit safe to
// call from the hub's goroutines and must return an error once the peer is
// gone; the hub treats an Emit error as a terminal condition and drops the
// listener.
type Listener interface {
	Emit(u Update) error

	// OnShutdown registers fn to run when the listener terminates on its own
	// (peer disconnect, write failure). The hub registers its own removal
	// here so dead listeners clean themselves up without a sweeper.
	OnShutdown(fn func())
}
