package client

import (
	"context"
	"fmt"

	"github.com/grandcat/zeroconf"

	"github.com/Nandu0007/collab-code-editor/protocol"
)

// Discover browses the local network for a CollabCode server and returns
// the first instance found as host:port. The ctx deadline bounds the
// browse.
func Discover(ctx context.Context) (string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("initializing mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, protocol.MDNSService, "local.", entries); err != nil {
		return "", fmt.Errorf("browsing for %s: %w", protocol.MDNSService, err)
	}

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return "", fmt.Errorf("no %s service found", protocol.MDNSService)
			}
			if len(entry.AddrIPv4) == 0 {
				continue
			}
			return fmt.Sprintf("%s:%d", entry.AddrIPv4[0], entry.Port), nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
