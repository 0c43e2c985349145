package consul

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func agent(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestRegisterService(t *testing.T) {
	var got map[string]any
	addr := agent(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/v1/agent/service/register", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	})
	client, err := NewClient(addr)
	require.NoError(t, err)

	id, err := RegisterService(client, Registration{Name: "storefront", Host: "10.0.0.5", HTTPPort: 8080, GRPCPort: 9090})
	require.NoError(t, err)
	assert.Equal(t, "storefront-10.0.0.5-8080", id)
	assert.Equal(t, "storefront", got["Name"])
	assert.Equal(t, float64(8080), got["Port"])

	checks, ok := got["Checks"].([]any)
	require.True(t, ok)
	require.Len(t, checks, 2)
	assert.Equal(t, "10.0.0.5:9090/storefront", checks[0].(map[string]any)["GRPC"])
	assert.Equal(t, "http://10.0.0.5:8080/ping", checks[1].(map[string]any)["HTTP"])
}

func TestHealthServer(t *testing.T) {
	lis := bufconn.Listen(1 << 16)
	s, hs := NewHealthServer("storefront")
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client := healthpb.NewHealthClient(conn)
	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "storefront"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	hs.Shutdown()
	resp, err = client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "storefront"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}
