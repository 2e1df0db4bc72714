package server

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/imbesat-rizvi/imperio/internal/config"
)

const bufSize = 1024 * 1024

func TestGRPCHealthFollowsPipeline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lis := bufconn.Listen(bufSize)

	g := NewGRPCServer(config.GRPCConfig{Address: "127.0.0.1", Port: 9090, Enabled: true}, testLogger())
	served := make(chan error, 1)
	go func() { served <- g.Serve(lis) }()
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
		defer stopCancel()
		g.Stop(stopCtx)
		if err := <-served; err != nil {
			t.Errorf("Serve() error: %v", err)
		}
		lis.Close()
	})

	conn, err := grpc.DialContext(ctx, "bufconn",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("DialContext error: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	client := healthgrpc.NewHealthClient(conn)

	check := func(service string) healthgrpc.HealthCheckResponse_ServingStatus {
		t.Helper()
		resp, err := client.Check(ctx, &healthgrpc.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("Check(%q) error: %v", service, err)
		}
		return resp.GetStatus()
	}

	if got := check(HealthServiceName); got != healthgrpc.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Expected NOT_SERVING before the first cycle, got %v", got)
	}

	g.SetServing(true)
	for _, service := range []string{"", HealthServiceName} {
		if got := check(service); got != healthgrpc.HealthCheckResponse_SERVING {
			t.Errorf("Expected SERVING for %q, got %v", service, got)
		}
	}

	g.SetServing(false)
	if got := check(""); got != healthgrpc.HealthCheckResponse_NOT_SERVING {
		t.Errorf("Expected NOT_SERVING after the cycle ended, got %v", got)
	}
}
