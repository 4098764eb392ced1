package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpoints(t *testing.T) {
	tests := []struct {
		name string
		svc  Service
		want Endpoints
	}{
		{
			name: "default paths",
			svc:  Service{Addr: net.IPv4(192, 168, 1, 20), Port: 8080},
			want: Endpoints{
				RelayURL:  "ws://192.168.1.20:8080/ws",
				BrokerURL: "ws://192.168.1.20:8080/broker",
				APIURL:    "http://192.168.1.20:8080/api",
			},
		},
		{
			name: "paths from txt record",
			svc: Service{
				Addr: net.IPv4(10, 0, 0, 1),
				Port: 9000,
				Text: map[string]string{"ws": "/call/ws", "broker": "/call/broker"},
			},
			want: Endpoints{
				RelayURL:  "ws://10.0.0.1:9000/call/ws",
				BrokerURL: "ws://10.0.0.1:9000/call/broker",
				APIURL:    "http://10.0.0.1:9000/api",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.svc.Endpoints())
		})
	}
}

func TestAnnounceAndFind(t *testing.T) {
	// mDNS needs a multicast capable interface.
	if testing.Short() {
		t.Skip("Skipping mDNS test in short mode")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- Announce(ctx, "huddle-test", 18080, nil) }()

	findCtx, findCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer findCancel()
	svc, err := Find(findCtx)
	require.NoError(t, err)
	assert.Equal(t, 18080, svc.Port)
	assert.Equal(t, "/broker", svc.Text["broker"])

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("announce did not stop")
	}
}
