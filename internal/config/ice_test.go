package config

import (
	"strings"
	"testing"

	"github.com/pion/webrtc/v4"
)

func TestParseICEServersJSON(t *testing.T) {
	t.Parallel()

	raw := `[
	  {
	    "urls": ["stun:stun.example.com:3478"]
	  },
	  {
	    "urls": ["turn:turn.example.com:3478?transport=udp"],
	    "username": "user",
	    "credential": "pass"
	  }
	]`

	servers, err := parseICEServersJSON(raw, false)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(servers))
	}

	if got := servers[0].URLs; len(got) != 1 || got[0] != "stun:stun.example.com:3478" {
		t.Fatalf("unexpected stun urls: %#v", got)
	}
	if got := servers[1].Username; got != "user" {
		t.Fatalf("unexpected username: %q", got)
	}
	cred, ok := servers[1].Credential.(string)
	if !ok || cred != "pass" {
		t.Fatalf("unexpected credential: %#v", servers[1].Credential)
	}
}

func TestParseICEServersJSON_SupportsSingleStringURLs(t *testing.T) {
	t.Parallel()

	servers, err := parseICEServersJSON(`[{"urls": "stun:stun.example.com:3478"}]`, false)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(servers) != 1 {
		t.Fatalf("expected 1 server, got %d", len(servers))
	}
	if got := servers[0].URLs; len(got) != 1 || got[0] != "stun:stun.example.com:3478" {
		t.Fatalf("unexpected urls: %#v", got)
	}
}

func TestParseICEServersJSON_Rejects(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		`[{"urls": ["turn:turn.example.com:3478?transport=udp"]}]`,
		`[{"urls": ["http://example.com"]}]`,
		`[{"urls": []}]`,
		`{"urls": "stun:x"}`,
	} {
		if _, err := parseICEServersJSON(raw, false); err == nil {
			t.Fatalf("parseICEServersJSON(%s) succeeded, want error", raw)
		}
	}
}

func TestParseConvenienceICEServers(t *testing.T) {
	t.Parallel()

	servers, err := parseConvenienceICEServers(
		"stun:stun.example.com:3478",
		"turn:turn.example.com:3478?transport=udp",
		"user",
		"pass",
		false,
	)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(servers))
	}
	if servers[0].Username != "" || servers[0].Credential != nil {
		t.Fatalf("stun server should not have creds: %#v", servers[0])
	}
	if servers[1].Username != "user" {
		t.Fatalf("unexpected turn username: %q", servers[1].Username)
	}
	if servers[1].Credential.(string) != "pass" {
		t.Fatalf("unexpected turn credential: %#v", servers[1].Credential)
	}
}

func TestParseConvenienceICEServers_TURNNeedsCreds(t *testing.T) {
	t.Parallel()

	_, err := parseConvenienceICEServers("", "turn:turn.example.com:3478", "user", "", false)
	if err == nil || !strings.Contains(err.Error(), envTurnCredential) {
		t.Fatalf("err=%v, want mention of %s", err, envTurnCredential)
	}
}

func TestBrowserICEServers(t *testing.T) {
	t.Parallel()

	got := BrowserICEServers([]webrtc.ICEServer{
		{URLs: []string{"stun:a"}},
		{URLs: []string{"turn:b"}, Username: "u", Credential: "p"},
		{URLs: []string{"turn:c"}, Username: "u", Credential: webrtc.OAuthCredential{MACKey: "k", AccessToken: "t"}},
	})
	if len(got) != 2 {
		t.Fatalf("len=%d, want 2 (oauth server skipped)", len(got))
	}
	if got[1].Username != "u" || got[1].Credential != "p" {
		t.Fatalf("turn server=%+v", got[1])
	}
}

func TestParseICEServers_MintedTURNSkipsStaticCreds(t *testing.T) {
	t.Parallel()

	servers, err := parseICEServersFromValues("", "stun:a", "turn:turn.example.com:3478", "", "", true)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(servers) != 2 || servers[1].Username != "" || servers[1].Credential != nil {
		t.Fatalf("servers=%+v, want credential-less turn server", servers)
	}

	servers, err = parseICEServersFromValues(`[{"urls":"turns:t.example.com"}]`, "", "", "", "", true)
	if err != nil {
		t.Fatalf("parse json: %v", err)
	}
	if !IsTURNServer(servers[0]) {
		t.Fatalf("IsTURNServer(%+v)=false", servers[0])
	}
	if IsTURNServer(webrtc.ICEServer{URLs: []string{"stun:a"}}) {
		t.Fatalf("stun server reported as turn")
	}
}
