// Package discovery announces the relay on the local network over mDNS and
// lets clients find it without a configured URL.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/brutella/dnssd"
)

const (
	ServiceType = "_huddle._tcp"
	Domain      = "local"
)

var ErrNotFound = errors.New("no relay found on the local network")

// Service is an announced relay.
type Service struct {
	Instance string
	Addr     net.IP
	Port     int
	Text     map[string]string
}

// Endpoints are the URLs a call client needs to reach a relay.
type Endpoints struct {
	RelayURL  string
	BrokerURL string
	APIURL    string
}

// Endpoints builds the client URLs from the paths the relay put in its TXT
// record, falling back to the default routes.
func (s Service) Endpoints() Endpoints {
	host := net.JoinHostPort(s.Addr.String(), strconv.Itoa(s.Port))
	path := func(key, fallback string) string {
		if v := s.Text[key]; v != "" {
			return v
		}
		return fallback
	}
	return Endpoints{
		RelayURL:  "ws://" + host + path("ws", "/ws"),
		BrokerURL: "ws://" + host + path("broker", "/broker"),
		APIURL:    "http://" + host + path("api", "/api"),
	}
}

// Announce publishes the relay until ctx is done.
func Announce(ctx context.Context, instance string, port int, log *slog.Logger) error {
	const op = "discovery.Announce"
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("op", op), slog.String("instance", instance))

	service, err := dnssd.NewService(dnssd.Config{
		Name:   instance,
		Type:   ServiceType,
		Domain: Domain,
		Port:   port,
		Text: map[string]string{
			"ws":     "/ws",
			"broker": "/broker",
			"api":    "/api",
		},
	})
	if err != nil {
		return fmt.Errorf("create mDNS service: %w", err)
	}

	rp, err := dnssd.NewResponder()
	if err != nil {
		return fmt.Errorf("create mDNS responder: %w", err)
	}
	if _, err := rp.Add(service); err != nil {
		return fmt.Errorf("add mDNS service: %w", err)
	}

	log.Info("announcing relay", slog.Int("port", port))
	if err := rp.Respond(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("respond to mDNS queries: %w", err)
	}
	log.Info("mDNS announcement stopped")
	return nil
}

// Find browses for relays and returns the first one with a usable IPv4
// address. Bound the wait with ctx.
func Find(ctx context.Context) (Service, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	found := make(chan Service, 1)
	add := func(e dnssd.BrowseEntry) {
		for _, ip := range e.IPs {
			if ip.To4() == nil {
				continue
			}
			select {
			case found <- Service{Instance: e.Name, Addr: ip, Port: e.Port, Text: e.Text}:
				cancel()
			default:
			}
			return
		}
	}

	err := dnssd.LookupType(ctx, ServiceType+"."+Domain+".", add, func(dnssd.BrowseEntry) {})
	select {
	case svc := <-found:
		return svc, nil
	default:
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return Service{}, fmt.Errorf("mDNS lookup: %w", err)
	}
	return Service{}, ErrNotFound
}
