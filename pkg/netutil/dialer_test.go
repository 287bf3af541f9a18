package netutil

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderIPv4First(t *testing.T) {
	ips := []net.IPAddr{
		{IP: net.ParseIP("2001:db8::1")},
		{IP: net.ParseIP("192.0.2.10")},
		{IP: net.ParseIP("2001:db8::2")},
		{IP: net.ParseIP("192.0.2.20")},
	}

	ordered := orderIPv4First(ips)

	assert.Len(t, ordered, 4)
	assert.Equal(t, "192.0.2.10", ordered[0].String())
	assert.Equal(t, "192.0.2.20", ordered[1].String())
	assert.Equal(t, "2001:db8::1", ordered[2].String())
	assert.Equal(t, "2001:db8::2", ordered[3].String())
}

func TestOrderIPv4First_OnlyIPv6(t *testing.T) {
	ips := []net.IPAddr{
		{IP: net.ParseIP("2001:db8::1")},
	}

	ordered := orderIPv4First(ips)
	assert.Len(t, ordered, 1)
	assert.Equal(t, "2001:db8::1", ordered[0].String())
}

func TestNewHTTPClient(t *testing.T) {
	c := NewHTTPClient(0, true)
	assert.NotNil(t, c.Transport)

	c2 := NewHTTPClient(0, false)
	assert.NotNil(t, c2.Transport)
}
