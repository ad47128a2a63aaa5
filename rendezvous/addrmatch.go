// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rendezvous

import "net"

// LocalInterfaceAddrs returns the link-local-reachable unicast addresses
// of this host's network interfaces, as bare IPs without a port; a caller
// that announces them pairs each with its listening port itself.
// Loopback and link-local (169.254.0.0/16, fe80::/10)
// addresses are excluded; they are never useful as a same-LAN candidate
// across two different machines.
func LocalInterfaceAddrs() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var addrs []string
	for _, iface := range ifaces {
		ifaceAddrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range ifaceAddrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok || ipNet.IP.IsLoopback() || ipNet.IP.IsLinkLocalUnicast() {
				continue
			}
			addrs = append(addrs, ipNet.IP.String())
		}
	}
	return addrs, nil
}

// hostOf strips an optional ":port" suffix so callers can compare a bare
// IP against an "ip:port" candidate interchangeably.
func hostOf(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// sameSubnet reports whether ours and theirs are both parseable IPs that
// fall within the same /24 (IPv4) or /64 (IPv6) prefix, the same-LAN
// fast-path test from spec §4.C step 6. Either side may be a bare IP or
// an "ip:port" pair.
func sameSubnet(ours, theirs string) bool {
	a := net.ParseIP(hostOf(ours))
	b := net.ParseIP(hostOf(theirs))
	if a == nil || b == nil {
		return false
	}
	if a4, b4 := a.To4(), b.To4(); a4 != nil && b4 != nil {
		return a4[0] == b4[0] && a4[1] == b4[1] && a4[2] == b4[2]
	}
	a16, b16 := a.To16(), b.To16()
	if a16 == nil || b16 == nil {
		return false
	}
	for i := 0; i < 8; i++ {
		if a16[i] != b16[i] {
			return false
		}
	}
	return true
}

// preferredPeerAddr picks the same-LAN address from candidates if one
// shares a subnet with any of ours, otherwise falls back to the peer's
// reported public address.
func preferredPeerAddr(ourAddrs []string, peerLocalAddrs []string, peerPublicAddr string) string {
	for _, our := range ourAddrs {
		for _, theirs := range peerLocalAddrs {
			if sameSubnet(our, theirs) {
				return theirs
			}
		}
	}
	return peerPublicAddr
}
