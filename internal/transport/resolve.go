// File: internal/transport/resolve.go
// Author: momentics <momentics@gmail.com>
//
// Host/service resolution into concrete endpoints.

package transport

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"github.com/momentics/agentwire/api"
)

// Resolve turns host and service into candidate endpoints for network
// ("tcp", "tcp4" or "tcp6"). An empty host resolves to the wildcard
// address when passive (listening) and to loopback otherwise.
func Resolve(ctx context.Context, network, host, service string, passive bool) ([]netip.AddrPort, error) {
	target := net.JoinHostPort(host, service)
	fail := func(err error) error {
		return api.NewError(api.KindResolution, "resolve", err).WithAddr(target)
	}

	want4, want6 := true, true
	switch network {
	case "tcp4":
		want6 = false
	case "tcp6":
		want4 = false
	case "tcp", "":
	default:
		return nil, fail(fmt.Errorf("unsupported network %q", network))
	}

	port, err := net.DefaultResolver.LookupPort(ctx, "tcp", service)
	if err != nil {
		return nil, fail(err)
	}

	var addrs []netip.Addr
	switch {
	case host == "" && passive:
		if want4 {
			addrs = append(addrs, netip.IPv4Unspecified())
		}
		if want6 {
			addrs = append(addrs, netip.IPv6Unspecified())
		}
	case host == "":
		if want4 {
			addrs = append(addrs, netip.AddrFrom4([4]byte{127, 0, 0, 1}))
		}
		if want6 {
			addrs = append(addrs, netip.IPv6Loopback())
		}
	default:
		if a, err := netip.ParseAddr(host); err == nil {
			addrs = []netip.Addr{a}
		} else {
			ipnet := "ip"
			if !want6 {
				ipnet = "ip4"
			} else if !want4 {
				ipnet = "ip6"
			}
			addrs, err = net.DefaultResolver.LookupNetIP(ctx, ipnet, host)
			if err != nil {
				return nil, fail(err)
			}
		}
	}

	out := make([]netip.AddrPort, 0, len(addrs))
	seen := make(map[netip.Addr]bool, len(addrs))
	for _, a := range addrs {
		a = a.Unmap()
		if (a.Is4() && !want4) || (a.Is6() && !want6) || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, netip.AddrPortFrom(a, uint16(port)))
	}
	if len(out) == 0 {
		return nil, fail(fmt.Errorf("no %s address for %q", network, host))
	}
	return out, nil
}
