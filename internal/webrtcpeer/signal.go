package webrtcpeer

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/securesend/coord/internal/coord"
)

func toWireDescription(d webrtc.SessionDescription) *coord.SessionDescription {
	return &coord.SessionDescription{Type: d.Type.String(), SDP: d.SDP}
}

func fromWireDescription(d coord.SessionDescription) (webrtc.SessionDescription, error) {
	typ := webrtc.NewSDPType(d.Type)
	if typ == webrtc.SDPTypeUnknown {
		return webrtc.SessionDescription{}, fmt.Errorf("unknown sdp type %q", d.Type)
	}
	return webrtc.SessionDescription{Type: typ, SDP: d.SDP}, nil
}

func toWireCandidate(c webrtc.ICECandidateInit) *coord.ICECandidate {
	return &coord.ICECandidate{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func fromWireCandidate(c coord.ICECandidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}
