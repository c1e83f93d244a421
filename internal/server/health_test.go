package server

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func dialAdmin(t *testing.T, admin *AdminServer) healthpb.HealthClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	go func() { _ = admin.Serve(lis) }()
	t.Cleanup(admin.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func TestAdminServer_NotServingUntilMarked(t *testing.T) {
	admin := NewAdminServer("127.0.0.1:0", zaptest.NewLogger(t))
	client := dialAdmin(t, admin)

	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: RoomsService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	admin.MarkServing()

	resp, err = client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: RoomsService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	resp, err = client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestAdminServer_MarkNotServing(t *testing.T) {
	admin := NewAdminServer("127.0.0.1:0", zaptest.NewLogger(t))
	client := dialAdmin(t, admin)
	admin.MarkServing()
	admin.MarkNotServing()

	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: RoomsService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

func TestAdminServer_UnknownService(t *testing.T) {
	admin := NewAdminServer("127.0.0.1:0", zaptest.NewLogger(t))
	client := dialAdmin(t, admin)

	_, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "nope"})
	assert.Error(t, err)
}
