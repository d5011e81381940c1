// Package conn runs one WebSocket connection end to end: it accepts the
// socket, derives a client id, registers with the hub, and then runs the
// inbound read/dispatch loop alongside an outbound pump draining the
// client's queue — the same accept-then-read-loop shape as the teacher's
// HandleWebSocket, generalized from a single global broadcast channel to
// the hub's per-client outbound queue and multi-verb Dispatch.
package conn

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/nyxikitty/mpp-server/internal/hub"
	"github.com/nyxikitty/mpp-server/internal/identity"
	"github.com/nyxikitty/mpp-server/internal/outbound"
	"github.com/nyxikitty/mpp-server/internal/protocol"
)

// writeTimeout bounds how long the outbound pump waits for a single frame
// write before giving up on a stuck socket.
const writeTimeout = 10 * time.Second

// Options configures how a connection derives its client id.
type Options struct {
	Salt1      string
	Salt2      string
	Production bool
}

// Serve accepts the WebSocket upgrade on w/r, then blocks for the
// lifetime of the connection running its inbound and outbound loops. It
// returns once the socket closes for any reason.
func Serve(w http.ResponseWriter, r *http.Request, h *hub.Hub, opts Options, logger *zerolog.Logger) error {
	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		return err
	}

	clientID := identity.Derive(r.RemoteAddr, opts.Salt1, opts.Salt2, opts.Production)
	userID := clientID // no accounts: the derived transport id doubles as the user id

	q := h.Connect(clientID, userID)
	logger.Info().Str("client", clientID).Str("remote", r.RemoteAddr).Msg("connection accepted")

	pumpDone := make(chan struct{})
	go runOutboundPump(socket, q, pumpDone, logger)

	runInboundLoop(socket, clientID, h, logger)

	h.Disconnect(clientID)
	socket.Close(websocket.StatusNormalClosure, "disconnected")
	<-pumpDone

	logger.Info().Str("client", clientID).Msg("connection closed")
	return nil
}

// runInboundLoop reads frames until the socket errors or the client sends
// "bye", dispatching each parsed message to the hub. "bye" is handled
// here rather than in Dispatch so the loop can exit immediately after.
func runInboundLoop(socket *websocket.Conn, clientID string, h *hub.Hub, logger *zerolog.Logger) {
	for {
		_, data, err := socket.Read(context.Background())
		if err != nil {
			if !isExpectedClose(err) {
				logger.Debug().Err(err).Str("client", clientID).Msg("read error, closing connection")
			}
			return
		}

		messages, err := protocol.ParseFrame(data)
		if err != nil {
			continue
		}

		for _, in := range messages {
			if in.Verb == protocol.VerbBye {
				return
			}
			h.Dispatch(clientID, in)
		}
	}
}

// runOutboundPump drains q and writes each frame to the socket until the
// queue closes (signaled by Disconnect) or a write fails.
func runOutboundPump(socket *websocket.Conn, q *outbound.Queue, done chan struct{}, logger *zerolog.Logger) {
	defer close(done)
	for {
		frame, ok := q.Pop()
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := socket.Write(ctx, websocket.MessageText, frame)
		cancel()
		if err != nil {
			// Disconnect closes the queue before the pump notices the
			// socket is gone, so a write failure after that point is the
			// expected shutdown race, not a fresh problem worth logging.
			if !q.Closed() {
				logger.Debug().Err(err).Msg("outbound write failed")
			}
			return
		}
	}
}

func isExpectedClose(err error) bool {
	var closeErr websocket.CloseError
	if errors.As(err, &closeErr) {
		return true
	}
	return errors.Is(err, context.Canceled)
}
