package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Inbound transport kinds served by the conductor.
const (
	TransportHTTP = "http"
	TransportWS   = "ws"
)

// OutboundTransportTypes lists the accepted outbound transport kinds.
var OutboundTransportTypes = []string{"http", "https", "ws", "wss"}

// ParseTransport parses an inbound transport written as type:host:port.
// IPv6 hosts are written in brackets: ws:[::1]:8021.
func ParseTransport(spec string) (TransportConfig, error) {
	kind, addr, ok := strings.Cut(strings.TrimSpace(spec), ":")
	if !ok || kind == "" {
		return TransportConfig{}, fmt.Errorf("invalid transport %q: expected type:host:port", spec)
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return TransportConfig{}, fmt.Errorf("invalid transport %q: %w", spec, err)
	}
	if host == "" {
		return TransportConfig{}, fmt.Errorf("invalid transport %q: missing host", spec)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return TransportConfig{}, fmt.Errorf("invalid transport %q: bad port %q", spec, portStr)
	}

	kind = strings.ToLower(kind)
	if kind != TransportHTTP && kind != TransportWS {
		return TransportConfig{}, fmt.Errorf("invalid transport %q: unsupported type %q", spec, kind)
	}

	return TransportConfig{Type: kind, Host: host, Port: port}, nil
}

// ValidOutboundTransport reports whether kind is an accepted outbound type.
func ValidOutboundTransport(kind string) bool {
	for _, t := range OutboundTransportTypes {
		if strings.EqualFold(t, kind) {
			return true
		}
	}
	return false
}
