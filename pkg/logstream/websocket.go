package logstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sugawarayuuta/sonnet"

	"github.com/psaab/slotstrike/pkg/events"
	"github.com/psaab/slotstrike/pkg/ingress"
)

var (
	reconnectBackoff = 5 * time.Second
	idleTimeout      = 30 * time.Second
)

var errSubscriptionRejected = errors.New("rpc rejected logsSubscribe")

// subscribeRequest asks for every program log at confirmed commitment.
const subscribeRequest = `{"jsonrpc":"2.0","id":1,"method":"logsSubscribe","params":["all",{"commitment":"confirmed"}]}`

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpcMessage covers both the subscription reply and logsNotification.
type rpcMessage struct {
	ID     *uint64   `json:"id"`
	Method string    `json:"method"`
	Error  *rpcError `json:"error"`
	Params *struct {
		Result struct {
			Value logsValue `json:"value"`
		} `json:"result"`
		Subscription uint64 `json:"subscription"`
	} `json:"params"`
}

type logsValue struct {
	Signature string   `json:"signature"`
	Err       any      `json:"err"`
	Logs      []string `json:"logs"`
}

// decodeNotification extracts an event from one websocket message. ok is
// false for subscription replies and other non-notification traffic.
func decodeNotification(msg []byte, src events.Source, nowNs uint64) (ev events.RawLogEvent, ok bool, err error) {
	var m rpcMessage
	if err := sonnet.Unmarshal(msg, &m); err != nil {
		return ev, false, err
	}
	if m.Error != nil {
		return ev, false, fmt.Errorf("%w: %d %s", errSubscriptionRejected, m.Error.Code, m.Error.Message)
	}
	if m.Method != "logsNotification" || m.Params == nil {
		return ev, false, nil
	}
	v := m.Params.Result.Value
	return events.RawLogEvent{
		Signature: v.Signature,
		Logs:      v.Logs,
		HasError:  v.Err != nil,
		Ingress:   events.FromReceiveClock(src, nowNs),
	}, true, nil
}

// subscribe runs logsSubscribe until ctx is cancelled, reconnecting after
// failures.
func (s *Stream) subscribe(ctx context.Context, out chan<- events.RawLogEvent) {
	for ctx.Err() == nil {
		if !s.subscribeOnce(ctx, out) {
			return
		}
		s.counters.Reconnects.Add(1)
		if !sleepCtx(ctx, reconnectBackoff) {
			return
		}
	}
}

// subscribeOnce holds one websocket session. It returns false when the
// stream should stop entirely.
func (s *Stream) subscribeOnce(ctx context.Context, out chan<- events.RawLogEvent) bool {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.wssURL, nil)
	if err != nil {
		slog.Error("Log subscription failed", "err", err)
		return true
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		stop()
		conn.Close()
	}()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(subscribeRequest)); err != nil {
		slog.Error("Log subscription failed", "err", err)
		return true
	}
	slog.Info("Listening for tokens on " + s.pathName + " path...")

	for {
		conn.SetReadDeadline(time.Now().Add(idleTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			slog.Warn("Connection lost, attempting to reconnect in 5 seconds...", "err", err)
			return true
		}
		s.counters.Frames.Add(1)

		ev, ok, err := decodeNotification(msg, s.source, events.NowNanos())
		if errors.Is(err, errSubscriptionRejected) {
			slog.Error("Log subscription failed", "err", err)
			return true
		}
		if err != nil {
			s.counters.DecodeErrors.Add(1)
			slog.Debug("log notification parse failed", "err", err)
			continue
		}
		if !ok {
			continue
		}
		if !ingress.Publish(ctx, out, ev, &s.counters) {
			slog.Warn("Event channel closed. Stopping log stream.")
			return false
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
