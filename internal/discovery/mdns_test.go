package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/stretchr/testify/assert"
)

func TestAddresses(t *testing.T) {
	got := addresses([]*mdns.ServiceEntry{
		{AddrV4: net.IPv4(192, 168, 1, 20), Port: 8080},
		{AddrV4: net.IPv4(192, 168, 1, 5), Port: 8080},
		{AddrV4: net.IPv4(192, 168, 1, 20), Port: 8080},
		{AddrV4: nil, Port: 8080},
		{AddrV4: net.IPv4(10, 0, 0, 1), Port: 0},
		nil,
	})
	assert.Equal(t, []string{"192.168.1.20:8080", "192.168.1.5:8080"}, got)
	assert.Empty(t, addresses(nil))
}

func TestArgumentValidation(t *testing.T) {
	_, err := Advertise("box", "", 8080, nil, nil)
	assert.ErrorIs(t, err, errNoService)

	_, err = Advertise("box", DefaultService, 0, nil, nil)
	assert.ErrorContains(t, err, "invalid port")

	_, err = Browse("", time.Second)
	assert.ErrorIs(t, err, errNoService)
}
