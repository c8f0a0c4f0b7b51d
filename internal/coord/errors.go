package coord

import (
	"errors"
)

var (
	// ErrBadRequest is returned by Classify for malformed events. It wraps a
	// detail that is logged but never sent to the client.
	ErrBadRequest = errors.New("bad request")
	// ErrTransferNotFound means no live offer exists for the transfer id.
	ErrTransferNotFound = errors.New("transfer not found")
)

// Peer names the side of a transfer whose connection went away.
type Peer int

const (
	PeerSender Peer = iota
	PeerRecipient
)

func (p Peer) String() string {
	switch p {
	case PeerSender:
		return "sender"
	case PeerRecipient:
		return "recipient"
	default:
		return "unknown"
	}
}

// PeerGoneError reports that the connection of Peer is no longer live. Its
// message is meant to be shown to the person on the other side.
type PeerGoneError struct {
	Peer Peer
}

func (e *PeerGoneError) Error() string {
	if e.Peer == PeerSender {
		return senderGoneMessage
	}
	return recipientGoneMessage
}

const (
	badRequestMessage       = "Request is invalid"
	transferNotFoundMessage = "Transfer not found. It may have expired or the link may be mistyped."
	senderGoneMessage       = "Sender is gone. Ensure they leave their browser window open as you transfer the file."
	recipientGoneMessage    = "Recipient is gone. They may have closed their browser window."
	internalErrorMessage    = "Internal error"
)

// Outcome is the closed set of results of one invocation.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeBadRequest
	OutcomeTransferNotFound
	OutcomeSenderGone
	OutcomeRecipientGone
	OutcomeInternal
)

// String returns the wire code of the outcome, also used as a metrics label.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeBadRequest:
		return "bad_request"
	case OutcomeTransferNotFound:
		return "transfer_not_found"
	case OutcomeSenderGone:
		return "sender_gone"
	case OutcomeRecipientGone:
		return "recipient_gone"
	default:
		return "internal_error"
	}
}

// OutcomeOf maps err to exactly one outcome. Anything that is not one of the
// package's classified errors is an infrastructure failure.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	var gone *PeerGoneError
	switch {
	case errors.Is(err, ErrBadRequest):
		return OutcomeBadRequest
	case errors.Is(err, ErrTransferNotFound):
		return OutcomeTransferNotFound
	case errors.As(err, &gone):
		if gone.Peer == PeerSender {
			return OutcomeSenderGone
		}
		return OutcomeRecipientGone
	default:
		return OutcomeInternal
	}
}
