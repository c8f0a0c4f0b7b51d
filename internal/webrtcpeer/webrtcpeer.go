// Package webrtcpeer is a Go WebRTC peer that signals through the coordinator
// the same way the browser client does. It is used for end-to-end checks of a
// deployment and carries no file data itself.
package webrtcpeer

import (
	"log/slog"

	"github.com/pion/webrtc/v4"
)

type APIOptions struct {
	// Logger receives pion's logs. Defaults to slog.Default().
	Logger *slog.Logger
	// Configure is applied to the SettingEngine last, e.g. to swap in a
	// virtual network.
	Configure func(se *webrtc.SettingEngine)
}

// NewAPI builds a pion API whose internal logging goes through slog.
func NewAPI(opts APIOptions) *webrtc.API {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	se := webrtc.SettingEngine{
		LoggerFactory: NewLoggerFactory(log),
	}
	if opts.Configure != nil {
		opts.Configure(&se)
	}
	return webrtc.NewAPI(webrtc.WithSettingEngine(se))
}
