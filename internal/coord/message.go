package coord

import (
	"encoding/json"
	"fmt"
)

// InboundMessage is the client payload of the SEND_MESSAGE route. Action is
// accepted for compatibility with gateways that route on it.
type InboundMessage struct {
	Action    string  `json:"action,omitempty"`
	Recipient string  `json:"recipient"`
	Body      *string `json:"body"`
}

// Envelope is what a recipient connection receives. Body is opaque to the
// coordinator.
type Envelope struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Body      string `json:"body"`
}

func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// SignalType tags the JSON document carried in Envelope.Body by the browser
// clients. Only NEW_RECIPIENT is produced by the coordinator itself.
type SignalType string

const (
	SignalNewRecipient    SignalType = "NEW_RECIPIENT"
	SignalNewOffer        SignalType = "NEW_OFFER"
	SignalNewAnswer       SignalType = "NEW_ANSWER"
	SignalNewICECandidate SignalType = "NEW_ICE_CANDIDATE"
)

type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// Signal is the body vocabulary of the browser clients.
type Signal struct {
	Type      SignalType          `json:"type"`
	Offer     *SessionDescription `json:"offer,omitempty"`
	Answer    *SessionDescription `json:"answer,omitempty"`
	Candidate *ICECandidate       `json:"candidate,omitempty"`
}

// Encode returns s as the string placed in Envelope.Body.
func (s Signal) Encode() (string, error) {
	if err := s.validate(); err != nil {
		return "", err
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeSignal(body string) (Signal, error) {
	var s Signal
	if err := json.Unmarshal([]byte(body), &s); err != nil {
		return Signal{}, fmt.Errorf("invalid signal json: %w", err)
	}
	if err := s.validate(); err != nil {
		return Signal{}, err
	}
	return s, nil
}

func (s Signal) validate() error {
	switch s.Type {
	case SignalNewRecipient:
	case SignalNewOffer:
		if s.Offer == nil || s.Offer.Type != "offer" {
			return fmt.Errorf("%s signal missing offer", s.Type)
		}
	case SignalNewAnswer:
		if s.Answer == nil || s.Answer.Type != "answer" {
			return fmt.Errorf("%s signal missing answer", s.Type)
		}
	case SignalNewICECandidate:
		if s.Candidate == nil {
			return fmt.Errorf("%s signal missing candidate", s.Type)
		}
	default:
		return fmt.Errorf("unsupported signal type %q", s.Type)
	}
	return nil
}

// newRecipientBody is the fixed notification sent to an offerer.
var newRecipientBody = mustEncode(Signal{Type: SignalNewRecipient})

func mustEncode(s Signal) string {
	body, err := s.Encode()
	if err != nil {
		panic(err)
	}
	return body
}
