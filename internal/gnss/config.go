package gnss

import "time"

// Config configures the GNSS listener.
type Config struct {
	Device      string        // e.g. /dev/rfcomm0
	BluetoothMAC string       // MAC address rfcomm binds Device to when absent
	BaudRate    int           // default 9600
	BaseDir     string
	ReadTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Device == "" {
		c.Device = "/dev/rfcomm0"
	}
	if c.BaudRate == 0 {
		c.BaudRate = 9600
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 2 * time.Second
	}
	return c
}
