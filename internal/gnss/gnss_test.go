package gnss

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFixQuality(t *testing.T) {
	assert.Equal(t, 0, parseFixQuality(""))
	assert.Equal(t, 0, parseFixQuality("0"))
	assert.Equal(t, 1, parseFixQuality("1"))
	assert.Equal(t, 2, parseFixQuality("2"))
	assert.Equal(t, 0, parseFixQuality("invalid"))
}

func TestConfigDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	assert.Equal(t, "/dev/rfcomm0", c.Device)
	assert.Equal(t, 9600, c.BaudRate)
}
