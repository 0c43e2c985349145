// Package consul registers the service with the consul agent and serves the gRPC health check it polls.
package consul

import (
	"fmt"
	"net"
	"strconv"

	consulapi "github.com/hashicorp/consul/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func NewClient(addr string) (*consulapi.Client, error) {
	cfg := consulapi.DefaultConfig()
	cfg.Address = addr
	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating consul client: %w", err)
	}
	return client, nil
}

type Registration struct {
	Name     string
	Host     string
	HTTPPort int
	GRPCPort int
}

func (r Registration) ID() string {
	return fmt.Sprintf("%s-%s-%d", r.Name, r.Host, r.HTTPPort)
}

// RegisterService registers the HTTP endpoint with a gRPC health check against the health server
// and an HTTP check against /ping. Consul removes the entry when checks stay critical.
func RegisterService(client *consulapi.Client, r Registration) (string, error) {
	id := r.ID()
	reg := &consulapi.AgentServiceRegistration{
		ID:      id,
		Name:    r.Name,
		Address: r.Host,
		Port:    r.HTTPPort,
		Tags:    []string{"http", "storefront"},
		Checks: consulapi.AgentServiceChecks{
			{
				CheckID:                        id + "-grpc",
				Name:                           "gRPC health",
				GRPC:                           net.JoinHostPort(r.Host, strconv.Itoa(r.GRPCPort)) + "/" + r.Name,
				Interval:                       "10s",
				Timeout:                        "2s",
				DeregisterCriticalServiceAfter: "1m",
			},
			{
				CheckID:  id + "-http",
				Name:     "HTTP ping",
				HTTP:     "http://" + net.JoinHostPort(r.Host, strconv.Itoa(r.HTTPPort)) + "/ping",
				Interval: "10s",
				Timeout:  "2s",
			},
		},
	}
	if err := client.Agent().ServiceRegister(reg); err != nil {
		return "", fmt.Errorf("registering %s with consul: %w", r.Name, err)
	}
	return id, nil
}

func Deregister(client *consulapi.Client, id string) error {
	if err := client.Agent().ServiceDeregister(id); err != nil {
		return fmt.Errorf("deregistering %s: %w", id, err)
	}
	return nil
}

// NewHealthServer returns a gRPC server exposing the standard health service, with name marked
// as serving. Call Shutdown on the returned health server before stopping to fail checks first.
func NewHealthServer(name string) (*grpc.Server, *health.Server) {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)

	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	return s, hs
}
