package discovery

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/hashicorp/mdns"
	"go.uber.org/zap"
)

// DefaultService is the mDNS service type announced by speechparts servers.
const DefaultService = "_speechparts._tcp"

var errNoService = errors.New("service type is required")

// Advertiser announces a running server on the local network
type Advertiser struct {
	server *mdns.Server
	log    *zap.Logger
}

// Advertise starts answering mDNS queries for service on port. An empty
// instance uses the hostname.
func Advertise(instance, service string, port int, info []string, log *zap.Logger) (*Advertiser, error) {
	if service == "" {
		return nil, errNoService
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port %d", port)
	}
	if log == nil {
		log = zap.NewNop()
	}
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("get hostname: %w", err)
		}
		instance = host
	}

	zone, err := mdns.NewMDNSService(instance, service, "", "", port, nil, info)
	if err != nil {
		return nil, fmt.Errorf("create mDNS service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: zone})
	if err != nil {
		return nil, fmt.Errorf("start mDNS server: %w", err)
	}

	log = log.Named("discovery")
	log.Info("advertising", zap.String("instance", instance), zap.String("service", service), zap.Int("port", port))
	return &Advertiser{server: server, log: log}, nil
}

// Shutdown stops answering queries
func (a *Advertiser) Shutdown() error {
	a.log.Debug("advertising stopped")
	return a.server.Shutdown()
}

// Browse queries the local network for service and returns the distinct
// host:port addresses that answered within timeout.
func Browse(service string, timeout time.Duration) ([]string, error) {
	if service == "" {
		return nil, errNoService
	}

	entries := make(chan *mdns.ServiceEntry, 16)
	done := make(chan []string)
	go func() {
		var found []*mdns.ServiceEntry
		for e := range entries {
			found = append(found, e)
		}
		done <- addresses(found)
	}()

	params := mdns.DefaultParams(service)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true
	err := mdns.Query(params)
	close(entries)
	addrs := <-done
	if err != nil {
		return nil, fmt.Errorf("mDNS query: %w", err)
	}
	return addrs, nil
}

func addresses(entries []*mdns.ServiceEntry) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, e := range entries {
		if e == nil || e.AddrV4 == nil || e.Port == 0 {
			continue
		}
		addr := e.AddrV4.String() + ":" + strconv.Itoa(e.Port)
		if seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}
