package peer

import (
	"errors"
	"net"

	"github.com/danmuck/ledgerlink/internal/observability"
	"github.com/danmuck/ledgerlink/internal/protocol/frame"
	"github.com/danmuck/ledgerlink/internal/protocol/message"
)

func (p *Peer) nextSeq() uint64 {
	return p.seq.Add(1)
}

func (p *Peer) signalWriter() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// readLoop reads one frame at a time, decodes it, and dispatches it before
// reading the next.
func (p *Peer) readLoop(conn net.Conn) error {
	limits := p.cfg.limits()
	for {
		if p.isDetaching() {
			return nil
		}
		f, err := frame.ReadFrame(conn, limits)
		if err != nil {
			return p.readFailed(err)
		}
		if p.isDetaching() {
			return nil
		}
		h := f.Header
		observability.RecordPeerFrame("in", h.MessageType, int(frame.HeaderLen)+len(f.Payload))

		m, err := message.Decode(h, f.Payload)
		if err != nil {
			if message.IsUnknownType(err) {
				p.Punish(PunishUnknownRequest, err.Error())
				continue
			}
			p.punishAndDetach(PunishInvalidRequest, "decode: "+err.Error())
			return err
		}
		p.dispatch(m)
	}
}

func (p *Peer) readFailed(err error) error {
	switch {
	case errors.Is(err, frame.ErrInvalidMagic),
		errors.Is(err, frame.ErrUnsupportedVer),
		errors.Is(err, frame.ErrHeaderLenMismatch):
		p.punishAndDetach(PunishInvalidRequest, "bad frame header: "+err.Error())
	case errors.Is(err, frame.ErrPayloadTooLarge):
		p.punishAndDetach(PunishInvalidRequest, err.Error())
	default:
		p.transportFault("read", err)
	}
	return err
}

// writeLoop writes queued frames in order with at most one write
// outstanding.
func (p *Peer) writeLoop(conn net.Conn) error {
	for {
		p.mu.Lock()
		b, ok := p.queue.begin()
		closed := p.queue.closed
		p.mu.Unlock()

		if !ok {
			if closed {
				return nil
			}
			select {
			case <-p.wake:
				continue
			case <-p.detached:
				return nil
			}
		}

		if _, err := conn.Write(b); err != nil {
			p.transportFault("write", err)
			return err
		}
		mt, _ := frame.PeekType(b)
		observability.RecordPeerFrame("out", mt, len(b))

		p.mu.Lock()
		p.queue.finish()
		p.mu.Unlock()
	}
}

// SendPacket queues one encoded frame. Frames are dropped once the
// connection is detaching.
func (p *Peer) SendPacket(b []byte) bool {
	p.mu.Lock()
	if p.detaching || !p.queue.push(b) {
		p.mu.Unlock()
		return false
	}
	depth := p.queue.len()
	warn := false
	if depth >= p.cfg.SendQueueWarn {
		warn = !p.queueWarned
		p.queueWarned = true
	} else if depth < p.cfg.SendQueueWarn/2 {
		p.queueWarned = false
	}
	p.mu.Unlock()

	if warn {
		p.logger().Warn().Int("depth", depth).Msg("send queue backing up")
	}
	p.signalWriter()
	return true
}

// Send encodes m and queues it.
func (p *Peer) Send(m message.Message) bool {
	return p.sendEncoded(m, message.Encode)
}

// sendReply queues m as the answer to a request from the remote.
func (p *Peer) sendReply(m message.Message) bool {
	return p.sendEncoded(m, message.EncodeReply)
}

func (p *Peer) sendEncoded(m message.Message, encode func(uint64, message.Message, frame.Limits) ([]byte, error)) bool {
	b, err := encode(p.nextSeq(), m, p.cfg.limits())
	if err != nil {
		p.logger().Error().Err(err).Uint32("message_type", m.Type()).Msg("encode outbound message")
		return false
	}
	return p.SendPacket(b)
}
