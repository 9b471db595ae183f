// Package proxy implements per-session TCP forwarding. Each accepted client
// connection is matched with one backend connection and bytes are relayed in
// both directions until either side closes. The proxy is protocol-agnostic:
// it forwards bytes, not requests.
package proxy
