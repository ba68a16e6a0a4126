package transport

import "net/http"

// Metadata identifies the client to the service.
// It is sent as headers on the connection handshake.
type Metadata struct {
	// ClientID is the application-chosen client identifier
	ClientID string

	// Hostname is the client's hostname
	Hostname string

	// OSArch is the operating system and architecture (e.g., "linux/amd64")
	OSArch string

	// APIKey is the authentication key
	APIKey string

	// Agent is the library identifier, e.g. "relay-go/2.0.0"
	Agent string
}

// Header renders the metadata as handshake headers. Empty fields are omitted.
func (m Metadata) Header() http.Header {
	h := http.Header{}
	set := func(k, v string) {
		if v != "" {
			h.Set(k, v)
		}
	}
	set("X-Relay-Client-Id", m.ClientID)
	set("X-Relay-Hostname", m.Hostname)
	set("X-Relay-Os-Arch", m.OSArch)
	set("X-Relay-Agent", m.Agent)
	if m.APIKey != "" {
		h.Set("Authorization", "Bearer "+m.APIKey)
	}
	return h
}
