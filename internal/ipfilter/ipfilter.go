// Package ipfilter implements the CIDR allow/deny decision table of §4.2:
// the most specific matching network in each list wins, and a specificity
// tie is resolved in favor of allow.
//
// This supersedes the simpler "deny always wins" draft found in the
// original Python source's ipfilter.py — that variant is explicitly called
// out as superseded and is not reproduced here.
package ipfilter

import (
	"net"
	"strings"
)

// Check parses ip and the allow/deny entry lists and returns whether the
// request is permitted, per the table in §4.2. A malformed ip fails closed
// (denied).
func Check(ip string, allow, deny []string) bool {
	addr := net.ParseIP(ip)
	if addr == nil {
		return false
	}

	allowNet, allowMatched := mostSpecific(addr, allow)
	denyNet, denyMatched := mostSpecific(addr, deny)

	switch {
	case allowMatched && !denyMatched:
		return true
	case allowMatched && denyMatched:
		return prefixLen(allowNet) >= prefixLen(denyNet)
	case !allowMatched && denyMatched:
		return false
	default: // neither matched
		return len(allow) == 0
	}
}

// mostSpecific returns the matching network with the largest prefix length
// among entries of ip's address family, and whether any matched.
func mostSpecific(ip net.IP, entries []string) (*net.IPNet, bool) {
	var best *net.IPNet
	found := false

	for _, e := range entries {
		n, err := parseEntry(e)
		if err != nil {
			continue
		}
		if sameFamily(ip, n.IP) && n.Contains(ip) {
			if !found || prefixLen(n) > prefixLen(best) {
				best = n
				found = true
			}
		}
	}

	return best, found
}

// parseEntry turns a config entry into a network: "*" is 0.0.0.0/0 (and,
// by convention, matches only IPv4 addresses — use an explicit "::/0" for
// IPv6), a bare address becomes a /32 or /128, and anything else is parsed
// as CIDR.
func parseEntry(entry string) (*net.IPNet, error) {
	entry = strings.TrimSpace(entry)
	if entry == "*" {
		_, n, _ := net.ParseCIDR("0.0.0.0/0")
		return n, nil
	}

	if strings.Contains(entry, "/") {
		_, n, err := net.ParseCIDR(entry)
		return n, err
	}

	ip := net.ParseIP(entry)
	if ip == nil {
		return nil, &net.ParseError{Type: "IP address", Text: entry}
	}
	bits := 32
	if ip.To4() == nil {
		bits = 128
	}
	mask := net.CIDRMask(bits, bits)
	return &net.IPNet{IP: ip.Mask(mask), Mask: mask}, nil
}

func sameFamily(a, b net.IP) bool {
	return (a.To4() != nil) == (b.To4() != nil)
}

func prefixLen(n *net.IPNet) int {
	ones, _ := n.Mask.Size()
	return ones
}

// whitelistedPaths bypass the filter entirely per §4.3: "/", "/healthz",
// "/metrics", and anything under "/t/".
var whitelistedPaths = []string{"/", "/healthz", "/metrics"}

// Whitelisted reports whether path bypasses IP filtering.
func Whitelisted(path string) bool {
	for _, p := range whitelistedPaths {
		if path == p {
			return true
		}
	}
	return strings.HasPrefix(path, "/t/")
}
