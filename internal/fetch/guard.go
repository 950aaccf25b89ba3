package fetch

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
)

// Prefixes rejected on top of the netip classification helpers.
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("64:ff9b::/96"),
	netip.MustParsePrefix("2001:db8::/32"),
}

// isBlocked reports whether a must never be dialed.
func isBlocked(a netip.Addr) bool {
	a = a.Unmap()
	if !a.IsValid() {
		return true
	}
	if a.IsLoopback() || a.IsPrivate() || a.IsUnspecified() ||
		a.IsLinkLocalUnicast() || a.IsLinkLocalMulticast() ||
		a.IsInterfaceLocalMulticast() || a.IsMulticast() {
		return true
	}
	for _, p := range blockedPrefixes {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// checkURL validates scheme, host and credentials before any I/O.
func checkURL(u *url.URL, schemes []string) error {
	scheme := strings.ToLower(u.Scheme)
	allowed := false
	for _, s := range schemes {
		if scheme == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return &Error{Kind: KindInvalidURL, URL: u.Redacted(), Err: errors.New("scheme not allowed")}
	}
	if u.User != nil {
		return &Error{Kind: KindInvalidURL, URL: u.Redacted(), Err: errors.New("embedded credentials")}
	}
	if u.Hostname() == "" {
		return &Error{Kind: KindInvalidURL, URL: u.Redacted(), Err: errors.New("missing host")}
	}
	return nil
}

// dialContext resolves addr itself, refuses any blocked address and dials
// the validated IP directly so the connection cannot be rebound.
func (f *Fetcher) dialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, &Error{Kind: KindInvalidURL, URL: addr, Err: err}
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, &Error{Kind: KindInvalidURL, URL: addr, Err: err}
	}

	var addrs []netip.Addr
	if ip, err := netip.ParseAddr(host); err == nil {
		addrs = []netip.Addr{ip}
	} else {
		addrs, err = f.resolver.LookupNetIP(ctx, "ip", host)
		if err != nil {
			return nil, &Error{Kind: KindDNS, URL: host, Err: err}
		}
		if len(addrs) == 0 {
			return nil, &Error{Kind: KindDNS, URL: host, Err: errors.New("no addresses")}
		}
	}

	for _, a := range addrs {
		if f.blocked(a) {
			return nil, &Error{Kind: KindBlocked, URL: host, Err: errors.New("address " + a.String() + " is not routable from here")}
		}
	}

	var lastErr error
	for _, a := range addrs {
		target := netip.AddrPortFrom(a.Unmap(), uint16(port)).String()
		conn, err := f.dialer.DialContext(ctx, network, target)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (f *Fetcher) blocked(a netip.Addr) bool {
	if f.allowLoopback && a.Unmap().IsLoopback() {
		return false
	}
	return isBlocked(a)
}
