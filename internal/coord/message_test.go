package coord

import (
	"encoding/json"
	"testing"
)

func TestNewRecipientBody(t *testing.T) {
	if newRecipientBody != `{"type":"NEW_RECIPIENT"}` {
		t.Fatalf("newRecipientBody=%s", newRecipientBody)
	}
}

func TestSignal_EncodeDecode(t *testing.T) {
	mid := "0"
	idx := uint16(0)
	cases := []Signal{
		{Type: SignalNewOffer, Offer: &SessionDescription{Type: "offer", SDP: "v=0\r\n"}},
		{Type: SignalNewAnswer, Answer: &SessionDescription{Type: "answer", SDP: "v=0\r\n"}},
		{Type: SignalNewICECandidate, Candidate: &ICECandidate{Candidate: "candidate:1 1 udp 1 127.0.0.1 5000 typ host", SDPMid: &mid, SDPMLineIndex: &idx}},
	}
	for _, in := range cases {
		body, err := in.Encode()
		if err != nil {
			t.Fatalf("Encode(%s): %v", in.Type, err)
		}
		out, err := DecodeSignal(body)
		if err != nil {
			t.Fatalf("DecodeSignal(%s): %v", body, err)
		}
		if out.Type != in.Type {
			t.Fatalf("type=%q, want %q", out.Type, in.Type)
		}
	}
}

func TestDecodeSignal_BrowserOffer(t *testing.T) {
	// Shape produced by the browser client for an RTCSessionDescription.
	body := `{"type":"NEW_OFFER","offer":{"type":"offer","sdp":"v=0\r\n"}}`
	s, err := DecodeSignal(body)
	if err != nil {
		t.Fatalf("DecodeSignal: %v", err)
	}
	if s.Offer == nil || s.Offer.SDP != "v=0\r\n" {
		t.Fatalf("offer=%+v", s.Offer)
	}
}

func TestDecodeSignal_Rejects(t *testing.T) {
	for _, body := range []string{
		`not json`,
		`{"type":"NEW_OFFER"}`,
		`{"type":"NEW_ANSWER","answer":{"type":"offer","sdp":""}}`,
		`{"type":"NEW_ICE_CANDIDATE"}`,
		`{"type":"HELLO"}`,
	} {
		if _, err := DecodeSignal(body); err == nil {
			t.Fatalf("DecodeSignal(%s) succeeded, want error", body)
		}
	}
}

func TestEnvelope_Encode(t *testing.T) {
	b, err := Envelope{Sender: "s", Recipient: "r", Body: `{"type":"NEW_RECIPIENT"}`}.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(got) != 3 || got["sender"] != "s" || got["recipient"] != "r" || got["body"] != `{"type":"NEW_RECIPIENT"}` {
		t.Fatalf("envelope=%v", got)
	}
}
