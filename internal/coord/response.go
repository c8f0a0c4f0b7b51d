package coord

import (
	"encoding/json"
	"net/http"
)

// Response is the transport acknowledgement of one invocation.
type Response struct {
	StatusCode int
	Body       string
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseFor builds the acknowledgement for err. Infrastructure causes are
// replaced by a generic message; the caller logs them.
func ResponseFor(err error) Response {
	outcome := OutcomeOf(err)
	switch outcome {
	case OutcomeSuccess:
		return Response{StatusCode: http.StatusOK}
	case OutcomeBadRequest:
		return errorResponse(http.StatusBadRequest, outcome, badRequestMessage)
	case OutcomeTransferNotFound:
		return errorResponse(http.StatusNotFound, outcome, transferNotFoundMessage)
	case OutcomeSenderGone:
		return errorResponse(http.StatusGone, outcome, senderGoneMessage)
	case OutcomeRecipientGone:
		return errorResponse(http.StatusGone, outcome, recipientGoneMessage)
	default:
		return errorResponse(http.StatusInternalServerError, OutcomeInternal, internalErrorMessage)
	}
}

func errorResponse(status int, outcome Outcome, message string) Response {
	b, err := json.Marshal(errorBody{Code: outcome.String(), Message: message})
	if err != nil {
		return Response{StatusCode: status}
	}
	return Response{StatusCode: status, Body: string(b)}
}
