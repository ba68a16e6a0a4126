package transport

import "testing"

func TestMetadata_Header(t *testing.T) {
	h := Metadata{
		ClientID: "c-1",
		OSArch:   "linux/amd64",
		APIKey:   "secret",
	}.Header()

	tests := map[string]string{
		"X-Relay-Client-Id": "c-1",
		"X-Relay-Os-Arch":   "linux/amd64",
		"Authorization":     "Bearer secret",
		"X-Relay-Hostname":  "",
		"X-Relay-Agent":     "",
	}
	for k, want := range tests {
		if got := h.Get(k); got != want {
			t.Errorf("header %s = %q, want %q", k, got, want)
		}
	}
}
