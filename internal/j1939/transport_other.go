//go:build !linux

package j1939

// OpenTransport is unavailable outside Linux: SocketCAN's J1939 address
// family has no equivalent elsewhere. The listener's Setup treats this as
// an ordinary initialization failure and disables itself.
func OpenTransport(canInterface string, bitrateBPS int) (Transport, error) {
	return nil, errUnsupportedPlatform
}
