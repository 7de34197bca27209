package interfaces

// -----------------------------------------------------------------------------
// IGatewayServer is a network surface fronting the race registry (HTTP, gRPC).
// -----------------------------------------------------------------------------

type IGatewayServer interface {
	// -----------------------------------------------------------------------------
	// Start serving; blocks until the server stops
	Start() error

	// -----------------------------------------------------------------------------
	// Stop the server gracefully
	Stop() error
}
