package game

import (
	"github.com/rs/zerolog/log"

	"vessel-racer/internal/metrics"
	"vessel-racer/internal/protocol"
	"vessel-racer/internal/transport"
	"vessel-racer/internal/vessel"
)

// receive drains everything that arrived since the last tick. Controls are
// only queued here; they are applied after the spawn pipeline so a control
// sent right after an announce finds its entity.
func (e *Engine) receive() {
	switch e.mode {
	case ModeServer:
		if e.hub == nil {
			return
		}
		for _, in := range e.hub.Drain() {
			e.handleInbound(in)
		}
	case ModeClient:
		if e.conn == nil {
			return
		}
		for _, msg := range e.conn.Drain() {
			e.client.Handle(msg)
		}
		select {
		case <-e.conn.Done():
			log.Warn().Err(e.conn.Err()).Msg("🔌 connection to server lost")
			e.client.Disconnected()
			e.conn = nil
		default:
		}
	}
}

func (e *Engine) handleInbound(in transport.Inbound) {
	switch in.Kind {
	case transport.EventConnect:
		e.server.Connect(in.Client)
	case transport.EventDisconnect:
		e.server.Disconnect(in.Client)
	case transport.EventMessage:
		switch m := in.Msg.(type) {
		case *protocol.AnnounceVessel:
			// the catalogue is closed-world: a definition naming an element we
			// do not have would stop the session once spawned
			if _, err := vessel.Resolve(m.Definition, e.catalogue); err != nil {
				log.Warn().Err(err).Uint64("client", uint64(in.Client)).Msg("⚠️ rejected vessel announcement")
				return
			}
			if _, err := e.server.Announce(in.Client, m); err != nil {
				log.Warn().Err(err).Uint64("client", uint64(in.Client)).Msg("⚠️ rejected vessel announcement")
			}
		case *protocol.Control:
			e.server.QueueControl(in.Client, m)
		default:
			log.Warn().Uint64("client", uint64(in.Client)).Stringer("type", in.Msg.Type()).Msg("⚠️ unexpected message from client")
		}
	}
}

// send builds this tick's replication output and hands it to the transport.
// Catch-up and definition broadcasts queued earlier in the tick go out
// before the frames.
func (e *Engine) send(tick uint64) {
	switch e.mode {
	case ModeServer:
		e.server.QueueFrames(tick)
		out := e.server.Flush()
		if e.hub == nil {
			return
		}
		for _, o := range out {
			recipients := e.server.Recipients(o)
			if len(recipients) == 0 {
				continue
			}
			data, err := e.hub.Encode(o.Msg)
			if err != nil {
				log.Error().Err(err).Stringer("type", o.Msg.Type()).Msg("❌ encode failed")
				continue
			}
			droppable := false
			if f, ok := o.Msg.(*protocol.ReplicationFrame); ok {
				droppable = f.Droppable()
			}
			for _, client := range recipients {
				if err := e.hub.Send(client, data, droppable); err != nil {
					log.Debug().Err(err).Uint64("client", uint64(client)).Msg("send skipped")
					continue
				}
				metrics.RecordMessageOut(o.Msg.Type().String(), len(data))
			}
		}
	case ModeClient:
		if e.conn == nil {
			return
		}
		e.client.Announce()
		e.client.SendControl()
		for _, msg := range e.client.Flush() {
			if err := e.conn.Send(msg); err != nil {
				log.Warn().Err(err).Stringer("type", msg.Type()).Msg("⚠️ send to server failed")
				return
			}
		}
	}
}
