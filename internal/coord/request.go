package coord

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Route identifies the kind of inbound event.
type Route string

const (
	RouteConnect     Route = "$connect"
	RouteDisconnect  Route = "$disconnect"
	RouteSendMessage Route = "SEND_MESSAGE"
	// RouteDefault is where unrecognized actions land. It always classifies as
	// a bad request.
	RouteDefault Route = "$default"
)

// ParseRoute reports whether s names one of the routes the coordinator serves.
func ParseRoute(s string) (Route, bool) {
	switch r := Route(s); r {
	case RouteConnect, RouteDisconnect, RouteSendMessage:
		return r, true
	default:
		return RouteDefault, false
	}
}

// Event is one inbound transport event. ConnectionHandle is assigned by the
// transport and identifies the caller's connection.
type Event struct {
	Route            string
	ConnectionHandle string
	Query            map[string]string
	Body             string
	IsBase64Encoded  bool
}

// Role is the part a connection plays in a transfer.
type Role int

const (
	RoleOfferer Role = iota + 1
	RoleReceiver
)

func (r Role) String() string {
	switch r {
	case RoleOfferer:
		return "offerer"
	case RoleReceiver:
		return "receiver"
	default:
		return "unknown"
	}
}

// ParseRole is case-sensitive.
func ParseRole(s string) (Role, bool) {
	switch s {
	case "offerer":
		return RoleOfferer, true
	case "receiver":
		return RoleReceiver, true
	default:
		return 0, false
	}
}

// Command is the closed set of classified events.
type Command interface {
	isCommand()
}

type Connect struct {
	Role             Role
	TransferID       string
	ConnectionHandle string
}

type Disconnect struct{}

type Relay struct {
	SenderHandle    string
	RecipientHandle string
	Body            string
}

func (Connect) isCommand()    {}
func (Disconnect) isCommand() {}
func (Relay) isCommand()      {}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

// Classify turns ev into a Command. It has no side effects. Every failure
// wraps ErrBadRequest.
func Classify(ev Event) (Command, error) {
	route, ok := ParseRoute(ev.Route)
	if !ok {
		return nil, badRequest("unrecognized route %q", ev.Route)
	}

	switch route {
	case RouteConnect:
		return classifyConnect(ev)
	case RouteDisconnect:
		return Disconnect{}, nil
	case RouteSendMessage:
		return classifyRelay(ev)
	default:
		return nil, badRequest("unrecognized route %q", ev.Route)
	}
}

func classifyConnect(ev Event) (Command, error) {
	transferID, ok := ev.Query["transfer_id"]
	if !ok || transferID == "" {
		return nil, badRequest("missing transfer_id")
	}
	rawRole, ok := ev.Query["role"]
	if !ok {
		return nil, badRequest("missing role")
	}
	role, ok := ParseRole(rawRole)
	if !ok {
		return nil, badRequest("unsupported role %q", rawRole)
	}
	if ev.ConnectionHandle == "" {
		return nil, badRequest("missing connection handle")
	}
	return Connect{
		Role:             role,
		TransferID:       transferID,
		ConnectionHandle: ev.ConnectionHandle,
	}, nil
}

func classifyRelay(ev Event) (Command, error) {
	if ev.ConnectionHandle == "" {
		return nil, badRequest("missing connection handle")
	}
	body, err := eventBody(ev)
	if err != nil {
		return nil, err
	}
	msg, err := DecodeInboundMessage(body)
	if err != nil {
		return nil, badRequest("%v", err)
	}
	return Relay{
		SenderHandle:    ev.ConnectionHandle,
		RecipientHandle: msg.Recipient,
		Body:            *msg.Body,
	}, nil
}

func eventBody(ev Event) ([]byte, error) {
	if !ev.IsBase64Encoded {
		return []byte(ev.Body), nil
	}
	b, err := base64.StdEncoding.DecodeString(ev.Body)
	if err != nil {
		return nil, badRequest("invalid base64 body")
	}
	return b, nil
}

// DecodeInboundMessage parses a SEND_MESSAGE payload. recipient must be
// non-empty and body must be present (it may be the empty string).
func DecodeInboundMessage(data []byte) (InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return InboundMessage{}, fmt.Errorf("invalid message json: %v", err)
	}
	if msg.Recipient == "" {
		return InboundMessage{}, fmt.Errorf("missing recipient")
	}
	if msg.Body == nil {
		return InboundMessage{}, fmt.Errorf("missing body")
	}
	return msg, nil
}
