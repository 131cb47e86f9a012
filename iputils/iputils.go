// Package iputils converts IPv4 addresses to and from sortable 32-bit keys.
package iputils

import (
	"fmt"
	"math/rand"
	"net"
	"strings"
)

// IPToUint32 converts a net.IP to uint32 representation
// Uses BigEndian encoding for consistent network byte order
func IPToUint32(ip net.IP) uint32 {
	ipv4 := ip.To4()
	if ipv4 == nil {
		return 0
	}
	return uint32(ipv4[0])<<24 | uint32(ipv4[1])<<16 | uint32(ipv4[2])<<8 | uint32(ipv4[3])
}

// Uint32ToIP converts a uint32 back to net.IP
func Uint32ToIP(ip uint32) net.IP {
	return net.IPv4(byte(ip>>24), byte(ip>>16), byte(ip>>8), byte(ip))
}

// ParseKey parses a dotted IPv4 address into its key. IPv6 addresses,
// including IPv4-mapped ones written in IPv6 form, are rejected.
func ParseKey(s string) (uint32, bool) {
	if !strings.Contains(s, ".") || strings.Contains(s, ":") {
		return 0, false
	}
	ip := net.ParseIP(s)
	if ip == nil || ip.To4() == nil {
		return 0, false
	}
	return IPToUint32(ip), true
}

// KeyString formats a key as a dotted IPv4 address
func KeyString(key uint32) string {
	return Uint32ToIP(key).String()
}

// RandomKeysFromRange draws count addresses inside an IPv4 CIDR range,
// excluding the network and broadcast addresses when the range has them.
func RandomKeysFromRange(cidr string, count int, rng *rand.Rand) ([]uint32, error) {
	if count < 0 {
		return nil, fmt.Errorf("negative key count %d", count)
	}
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, err
	}

	// The number of leading 1s in the mask
	ones, bits := ipnet.Mask.Size()
	if bits != 32 {
		return nil, fmt.Errorf("only IPv4 is supported")
	}

	base := uint64(IPToUint32(ipnet.IP))
	size := uint64(1) << (32 - ones)
	if size > 2 {
		// Avoid network (0) and broadcast (size-1)
		base++
		size -= 2
	}

	keys := make([]uint32, count)
	for i := range keys {
		keys[i] = uint32(base + uint64(rng.Int63n(int64(size))))
	}
	return keys, nil
}

// IsValidCidr reports whether s is an IPv4 CIDR range
func IsValidCidr(s string) bool {
	if strings.Contains(s, ":") {
		return false
	}
	_, ipnet, err := net.ParseCIDR(s)
	return err == nil && ipnet.IP.To4() != nil
}
