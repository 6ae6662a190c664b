package rpc

import (
	"context"
	"fmt"
	"net"
	"net/url"

	"github.com/jinshu-im/jinshu/internal/logger"
	"google.golang.org/grpc"
)

// ServiceConfig describes how a gRPC service binds and how peers reach it
// through the registry.
type ServiceConfig struct {
	// ServiceName is the name the service registers under.
	ServiceName string `mapstructure:"service_name" validate:"required"`

	// PublicHost is the host peers dial. "0.0.0.0" (or empty) selects the
	// first non-loopback interface address at bind time.
	PublicHost string `mapstructure:"public_host"`

	// ListenIP and ListenPort are the local bind address. Port 0 picks an
	// ephemeral port, which is then reflected in the public URI.
	ListenIP   string `mapstructure:"listen_ip"`
	ListenPort int    `mapstructure:"listen_port" validate:"min=0,max=65535"`
}

// Listen binds the configured address and derives the public service URI
// (http://host:port/) that gets written to the registry.
func (c *ServiceConfig) Listen() (net.Listener, *url.URL, error) {
	addr := net.JoinHostPort(c.ListenIP, fmt.Sprintf("%d", c.ListenPort))
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("bind %s service on %s: %w", c.ServiceName, addr, err)
	}

	port := lis.Addr().(*net.TCPAddr).Port
	host := c.PublicHost
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host, err = localInterfaceAddr()
		if err != nil {
			_ = lis.Close()
			return nil, nil, fmt.Errorf("public host is unspecified and %w; set 'public_host' in the configuration", err)
		}
		logger.Info("Public host is unspecified, using local interface address",
			"service", c.ServiceName, "host", host)
	}

	uri, err := url.Parse(fmt.Sprintf("http://%s/", net.JoinHostPort(host, fmt.Sprintf("%d", port))))
	if err != nil {
		_ = lis.Close()
		return nil, nil, fmt.Errorf("build service uri: %w", err)
	}
	return lis, uri, nil
}

// localInterfaceAddr returns the first non-loopback unicast address.
func localInterfaceAddr() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", fmt.Errorf("no local interface address available: %w", err)
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		return ipNet.IP.String(), nil
	}
	return "", fmt.Errorf("no local interface address available")
}

// Serve runs srv on lis until ctx is cancelled, then stops it gracefully.
// It blocks and returns the serve error, or nil after a clean stop.
func Serve(ctx context.Context, srv *grpc.Server, lis net.Listener, name string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(lis)
	}()

	logger.Info("RPC service listening", "service", name, "address", lis.Addr())

	select {
	case err := <-errCh:
		return fmt.Errorf("%s rpc server: %w", name, err)
	case <-ctx.Done():
		srv.GracefulStop()
		<-errCh
		logger.Info("RPC service stopped", "service", name)
		return nil
	}
}
