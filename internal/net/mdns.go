package net

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
)

const serviceType = "_lessonboard._tcp"

// Host is a hub found on the local network.
type Host struct {
	Instance string
	Addr     string
	Room     string
}

// URL is the hub's http base url.
func (h Host) URL() string {
	return "http://" + h.Addr
}

// Advertise announces a hub listening on port. An empty instance uses the
// hostname. Shutdown the returned server to withdraw it.
func Advertise(instance string, port int, room string) (*mdns.Server, error) {
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("could not get hostname: %w", err)
		}
		instance = host
	}

	info := []string{"LessonBoard", "path=/ws"}
	if room != "" {
		info = append(info, "room="+room)
	}
	service, err := mdns.NewMDNSService(instance, serviceType, "", "", port, nil, info)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}
	return server, nil
}

// Browse queries the local network for hubs for timeout.
func Browse(timeout time.Duration) ([]Host, error) {
	entries := make(chan *mdns.ServiceEntry, 8)
	var (
		hosts []Host
		wg    sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		seen := make(map[string]bool)
		for e := range entries {
			h, ok := hostFromEntry(e)
			if !ok || seen[h.Addr] {
				continue
			}
			seen[h.Addr] = true
			hosts = append(hosts, h)
		}
	}()
	err := mdns.Query(&mdns.QueryParam{
		Service:     serviceType,
		Domain:      "local",
		Timeout:     timeout,
		Entries:     entries,
		DisableIPv6: true,
	})
	close(entries)
	wg.Wait()
	if err != nil {
		return nil, fmt.Errorf("mdns query failed: %w", err)
	}
	return hosts, nil
}

func hostFromEntry(e *mdns.ServiceEntry) (Host, bool) {
	if e == nil || e.AddrV4 == nil || e.Port == 0 {
		return Host{}, false
	}
	h := Host{
		Instance: strings.TrimSuffix(e.Name, "."+serviceType+".local."),
		Addr:     fmt.Sprintf("%s:%d", e.AddrV4.String(), e.Port),
	}
	for _, field := range e.InfoFields {
		if room, ok := strings.CutPrefix(field, "room="); ok {
			h.Room = room
		}
	}
	return h, true
}
