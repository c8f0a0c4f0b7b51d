package webrtcpeer

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
)

func TestHandleFrame_ConnectRejectionIsFatal(t *testing.T) {
	p := &Peer{log: slog.New(slog.NewTextHandler(io.Discard, nil))}

	err := p.handleFrame([]byte(`{"statusCode":404,"route":"$connect","body":"{\"code\":\"transfer_not_found\",\"message\":\"x\"}"}`))
	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("err=%v, want *RejectedError", err)
	}
	if rejected.StatusCode != http.StatusNotFound || rejected.Code != "transfer_not_found" {
		t.Fatalf("rejected=%+v, want 404 transfer_not_found", rejected)
	}
}

func TestHandleFrame_RelayRejectionIsNotFatal(t *testing.T) {
	p := &Peer{log: slog.New(slog.NewTextHandler(io.Discard, nil))}

	for _, data := range []string{
		`{"statusCode":410,"route":"SEND_MESSAGE","body":"{\"code\":\"recipient_gone\",\"message\":\"x\"}"}`,
		`{"statusCode":400,"route":"$default","body":"{\"code\":\"bad_request\",\"message\":\"x\"}"}`,
		`{"statusCode":410,"body":"{\"code\":\"recipient_gone\",\"message\":\"x\"}"}`,
	} {
		if err := p.handleFrame([]byte(data)); err != nil {
			t.Fatalf("handleFrame(%s)=%v, want nil", data, err)
		}
	}
}
