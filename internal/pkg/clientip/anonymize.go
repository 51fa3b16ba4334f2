package clientip

import (
	"net/netip"
	"strings"
)

// Anonymize zeroes the last octet of a dotted-quad IPv4 address
// ("203.0.113.45" becomes "203.0.113.0"). Any other input, IPv6 included,
// is returned unchanged.
func Anonymize(ip string) string {
	if strings.Count(ip, ".") != 3 {
		return ip
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil || !addr.Is4() {
		return ip
	}
	octets := addr.As4()
	octets[3] = 0
	return netip.AddrFrom4(octets).String()
}
