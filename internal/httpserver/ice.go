package httpserver

import (
	"github.com/pion/webrtc/v4"

	"github.com/securesend/coord/internal/config"
)

// iceServers returns the browser ICE list. When a generator is configured,
// every TURN server in the response shares one freshly minted credential.
func (s *Server) iceServers() ([]config.BrowserICEServer, error) {
	if s.opts.TURN == nil {
		return config.BrowserICEServers(s.cfg.ICEServers), nil
	}

	creds, err := s.opts.TURN.Random()
	if err != nil {
		return nil, err
	}
	servers := make([]webrtc.ICEServer, len(s.cfg.ICEServers))
	for i, server := range s.cfg.ICEServers {
		if config.IsTURNServer(server) {
			server.Username = creds.Username
			server.Credential = creds.Credential
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		servers[i] = server
	}
	return config.BrowserICEServers(servers), nil
}
