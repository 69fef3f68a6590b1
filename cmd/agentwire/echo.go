// File: cmd/agentwire/echo.go
// Author: momentics <momentics@gmail.com>
//
// Delegates used by serve and send.

package main

import (
	"log/slog"

	"github.com/momentics/agentwire/api"
	"github.com/momentics/agentwire/protocol"
)

// echoAgent answers every frame with the same payload, prefixed if
// configured, addressed back to the sender.
type echoAgent struct {
	id     uint32
	prefix []byte
	log    *slog.Logger
}

func (e *echoAgent) AgentID() uint32       { return e.id }
func (e *echoAgent) Connected(api.Session) {}
func (e *echoAgent) DataSent(api.Session)  {}

func (e *echoAgent) Closed(s api.Session) {
	e.log.Debug("peer gone", "agent", e.id, "session", s.Label())
}

func (e *echoAgent) DataReceived(s api.Session) {
	h, p := s.ReadFrame()
	if p == nil {
		return
	}
	reply := p
	if len(e.prefix) > 0 {
		reply = append(append([]byte(nil), e.prefix...), p...)
	}
	if err := s.WriteData(e.id, h.SourceAgentID, reply); err != nil {
		e.log.Warn("echo failed", "agent", e.id, "session", s.Label(), "err", err)
	}
}

type reply struct {
	header  protocol.Header
	payload []byte
}

// replyAgent hands the first frames it receives to a channel.
type replyAgent struct {
	id      uint32
	replies chan reply
	closed  chan struct{}
}

func newReplyAgent(id uint32) *replyAgent {
	return &replyAgent{id: id, replies: make(chan reply, 16), closed: make(chan struct{}, 1)}
}

func (r *replyAgent) AgentID() uint32       { return r.id }
func (r *replyAgent) Connected(api.Session) {}
func (r *replyAgent) DataSent(api.Session)  {}

func (r *replyAgent) Closed(api.Session) {
	select {
	case r.closed <- struct{}{}:
	default:
	}
}

func (r *replyAgent) DataReceived(s api.Session) {
	h, p := s.ReadFrame()
	if p == nil {
		return
	}
	select {
	case r.replies <- reply{header: h, payload: p}:
	default:
	}
}
