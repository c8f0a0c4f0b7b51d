package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

const (
	envICEServersJSON = "COORD_ICE_SERVERS_JSON"

	envStunURLs       = "COORD_STUN_URLS"
	envTurnURLs       = "COORD_TURN_URLS"
	envTurnUsername   = "COORD_TURN_USERNAME"
	envTurnCredential = "COORD_TURN_CREDENTIAL"
)

// DefaultStunURLs is used when no ICE configuration is given. Browser peers
// behind NAT need at least one STUN server to find each other.
const DefaultStunURLs = "stun:stun.l.google.com:19302"

// parseICEServersFromValues prefers the JSON form over the convenience vars.
// With mintedTURN set, TURN servers may omit static credentials because
// /webrtc/ice fills them in per request.
func parseICEServersFromValues(iceServersJSON, stunURLs, turnURLs, turnUsername, turnCredential string, mintedTURN bool) ([]webrtc.ICEServer, error) {
	if raw := strings.TrimSpace(iceServersJSON); raw != "" {
		iceServers, err := parseICEServersJSON(raw, mintedTURN)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", envICEServersJSON, err)
		}
		return iceServers, nil
	}

	iceServers, err := parseConvenienceICEServers(stunURLs, turnURLs, turnUsername, turnCredential, mintedTURN)
	if err != nil {
		return nil, err
	}
	return iceServers, nil
}

type iceServerJSON struct {
	URLs       stringOrStringSlice `json:"urls"`
	Username   string              `json:"username,omitempty"`
	Credential string              `json:"credential,omitempty"`
}

type stringOrStringSlice []string

func (s *stringOrStringSlice) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*s = []string{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

// parseICEServersJSON parses and validates COORD_ICE_SERVERS_JSON, the
// RTCIceServer[] shape browsers accept.
func parseICEServersJSON(raw string, mintedTURN bool) ([]webrtc.ICEServer, error) {
	var servers []iceServerJSON
	if err := json.Unmarshal([]byte(raw), &servers); err != nil {
		return nil, err
	}

	out := make([]webrtc.ICEServer, 0, len(servers))
	for i, server := range servers {
		urls := make([]string, 0, len(server.URLs))
		for _, url := range server.URLs {
			url = strings.TrimSpace(url)
			if url == "" {
				continue
			}
			urls = append(urls, url)
		}

		pcServer := webrtc.ICEServer{
			URLs:     urls,
			Username: strings.TrimSpace(server.Username),
		}
		if strings.TrimSpace(server.Credential) != "" {
			pcServer.Credential = server.Credential
		}

		if err := validateICEServer(pcServer, mintedTURN); err != nil {
			return nil, fmt.Errorf("iceServers[%d]: %w", i, err)
		}
		out = append(out, pcServer)
	}
	return out, nil
}

// parseConvenienceICEServers builds an ICE server list from the
// comma-separated COORD_STUN_URLS / COORD_TURN_URLS and the static TURN
// credentials.
func parseConvenienceICEServers(stunURLs, turnURLs, turnUsername, turnCredential string, mintedTURN bool) ([]webrtc.ICEServer, error) {
	stunList := splitCommaSeparated(stunURLs)
	turnList := splitCommaSeparated(turnURLs)

	var servers []webrtc.ICEServer
	if len(stunList) > 0 {
		server := webrtc.ICEServer{URLs: stunList}
		if err := validateICEServer(server, false); err != nil {
			return nil, fmt.Errorf("%s: %w", envStunURLs, err)
		}
		servers = append(servers, server)
	}

	if len(turnList) > 0 {
		turnUsername = strings.TrimSpace(turnUsername)
		turnCredential = strings.TrimSpace(turnCredential)
		if !mintedTURN && (turnUsername == "" || turnCredential == "") {
			return nil, fmt.Errorf("%s/%s: both must be set when %s is set", envTurnUsername, envTurnCredential, envTurnURLs)
		}

		server := webrtc.ICEServer{
			URLs:     turnList,
			Username: turnUsername,
		}
		if turnCredential != "" {
			server.Credential = turnCredential
		}
		if err := validateICEServer(server, mintedTURN); err != nil {
			return nil, fmt.Errorf("%s: %w", envTurnURLs, err)
		}
		servers = append(servers, server)
	}

	return servers, nil
}

func splitCommaSeparated(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func validateICEServer(server webrtc.ICEServer, mintedTURN bool) error {
	if len(server.URLs) == 0 {
		return errors.New("missing urls")
	}

	requiresTurnCreds := false
	for _, raw := range server.URLs {
		url := strings.TrimSpace(raw)
		if url == "" {
			return errors.New("urls must not contain empty entries")
		}
		if !isAllowedICEScheme(url) {
			return fmt.Errorf("unsupported url scheme: %q", url)
		}
		if isTURNURL(url) {
			requiresTurnCreds = true
		}
	}

	if requiresTurnCreds && !mintedTURN {
		if strings.TrimSpace(server.Username) == "" {
			return errors.New("turn urls require username")
		}
		cred, ok := server.Credential.(string)
		if !ok || strings.TrimSpace(cred) == "" {
			return errors.New("turn urls require credential")
		}
	}

	return nil
}

// IsTURNServer reports whether any of server's URLs is a turn: or turns: URL.
func IsTURNServer(server webrtc.ICEServer) bool {
	for _, url := range server.URLs {
		if isTURNURL(strings.TrimSpace(url)) {
			return true
		}
	}
	return false
}

func isTURNURL(url string) bool {
	return strings.HasPrefix(url, "turn:") || strings.HasPrefix(url, "turns:")
}

func isAllowedICEScheme(url string) bool {
	switch {
	case strings.HasPrefix(url, "stun:"),
		strings.HasPrefix(url, "stuns:"),
		strings.HasPrefix(url, "turn:"),
		strings.HasPrefix(url, "turns:"):
		return true
	default:
		return false
	}
}

// BrowserICEServer is the RTCIceServer JSON shape served to browser peers.
type BrowserICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// BrowserICEServers converts servers for the /webrtc/ice response. Servers
// with non-password credentials are skipped.
func BrowserICEServers(servers []webrtc.ICEServer) []BrowserICEServer {
	out := make([]BrowserICEServer, 0, len(servers))
	for _, s := range servers {
		b := BrowserICEServer{URLs: append([]string(nil), s.URLs...), Username: s.Username}
		switch cred := s.Credential.(type) {
		case nil:
		case string:
			b.Credential = cred
		default:
			continue
		}
		out = append(out, b)
	}
	return out
}
