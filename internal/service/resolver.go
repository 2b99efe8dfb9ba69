package service

import (
	"context"
	"net"
)

// Resolver turns a hostname into its IP addresses
type Resolver interface {
	Resolve(ctx context.Context, host string) ([]string, error)
}

// NetResolver resolves through the system resolver
type NetResolver struct {
	resolver *net.Resolver
}

func NewNetResolver() *NetResolver {
	return &NetResolver{resolver: net.DefaultResolver}
}

func (r *NetResolver) Resolve(ctx context.Context, host string) ([]string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []string{ip.String()}, nil
	}
	return r.resolver.LookupHost(ctx, host)
}
