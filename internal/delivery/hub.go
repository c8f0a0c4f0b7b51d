package delivery

import (
	"context"
	"log/slog"
	"sync"
)

// Socket is a live client connection owned by the gateway.
type Socket interface {
	WriteText(ctx context.Context, payload []byte) error
	Close() error
}

// Hub is the Channel for the self-hosted gateway: a registry of the sockets
// connected to this process.
type Hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	sockets map[string]Socket
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:     log,
		sockets: make(map[string]Socket),
	}
}

// Register makes s reachable under handle, replacing any previous socket.
func (h *Hub) Register(handle string, s Socket) {
	h.mu.Lock()
	h.sockets[handle] = s
	h.mu.Unlock()
}

// Unregister removes handle if it still maps to s.
func (h *Hub) Unregister(handle string, s Socket) {
	h.mu.Lock()
	if cur, ok := h.sockets[handle]; ok && cur == s {
		delete(h.sockets, handle)
	}
	h.mu.Unlock()
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sockets)
}

func (h *Hub) Deliver(ctx context.Context, handle string, payload []byte) error {
	h.mu.RLock()
	s, ok := h.sockets[handle]
	h.mu.RUnlock()
	if !ok {
		return ErrGone
	}

	if err := s.WriteText(ctx, payload); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// Any write failure, including a write-deadline timeout on a slow
		// peer, counts as gone: the socket is closed here, so the handle is
		// dead for every later delivery too.
		h.log.Debug("delivery write failed; dropping socket", "handle", handle, "err", err)
		h.Unregister(handle, s)
		_ = s.Close()
		return ErrGone
	}
	return nil
}
