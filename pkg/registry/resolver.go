package registry

import (
	"context"
	"fmt"
	"net/url"

	"google.golang.org/grpc"
	"google.golang.org/grpc/resolver"
	"google.golang.org/grpc/resolver/manual"

	"github.com/jinshu-im/jinshu/internal/logger"
)

// DiscoverConn opens a client connection balanced over every instance of a
// service, kept in sync with registry membership. The returned Keeper owns
// the watch; closing it freezes the endpoint set, and the caller still
// closes the connection itself.
func DiscoverConn(ctx context.Context, reg Registry, service string, opts ...grpc.DialOption) (*grpc.ClientConn, *Keeper, error) {
	endpoints, err := reg.Discover(ctx, service)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Endpoints are discovered", "service", service, "count", len(endpoints))

	watcher, err := reg.Watch(ctx, service)
	if err != nil {
		return nil, nil, err
	}

	builder := manual.NewBuilderWithScheme("jinshu")
	builder.InitialState(resolver.State{Addresses: addresses(endpoints)})

	conn, err := grpc.NewClient(
		builder.Scheme()+":///"+service,
		append(opts, grpc.WithResolvers(builder))...,
	)
	if err != nil {
		_ = watcher.Close()
		return nil, nil, fmt.Errorf("connect to %s: %w", service, err)
	}

	keeper := NewKeeper(func(stop <-chan struct{}) error {
		defer watcher.Close()
		for {
			select {
			case <-stop:
				return nil
			case change, ok := <-watcher.Changes():
				if !ok {
					return nil
				}
				switch change.Kind {
				case ChangeCreate:
					endpoints[change.Key] = change.URI
				case ChangeDelete:
					delete(endpoints, change.Key)
				}
				builder.UpdateState(resolver.State{Addresses: addresses(endpoints)})
			}
		}
	})
	return conn, keeper, nil
}

func addresses(endpoints map[string]*url.URL) []resolver.Address {
	addrs := make([]resolver.Address, 0, len(endpoints))
	for _, uri := range endpoints {
		addrs = append(addrs, resolver.Address{Addr: uri.Host})
	}
	return addrs
}
