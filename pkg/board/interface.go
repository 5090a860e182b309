package board

// Device is a source of science box output lines (real board or mocked).
type Device interface {
	Connect() error
	Close() error
	Lines() <-chan Line
	IsConnected() bool
}

// Ensure Serial implements Device.
var _ Device = (*Serial)(nil)

// Ensure Mock implements Device.
var _ Device = (*Mock)(nil)
