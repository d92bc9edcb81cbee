package rtcp

import (
	"context"
	"time"

	"github.com/danmuck/rtcpctl/internal/channel"
)

// RunKeepAlive sends periodic KEEP_ALIVE_REQUESTs on an established channel.
// A request left unanswered for a full interval declares the peer lost and
// closes the channel. Blocks until ctx is cancelled or the channel dies.
func (m *Manager) RunKeepAlive(ctx context.Context, ch *channel.Channel, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ch.Status() == channel.Disconnected {
			return
		}
		if !ch.ConnectionEstablished() {
			continue
		}
		if ch.WaitingForKeepAlive() {
			m.log.Warn().Msg("keep-alive unanswered, closing channel")
			m.transport.CloseChannel(ch)
			return
		}
		ch.SetWaitingForKeepAlive(true)
		if _, err := m.SendKeepAliveRequest(ch); err != nil {
			m.log.Warn().Err(err).Msg("keep-alive send failed")
		}
	}
}
