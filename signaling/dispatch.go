package signaling

import (
	"context"
	"log/slog"
	"net"

	"github.com/esrtp/overlay/wire"
)

// Dispatch applies one SignalingRequest to the state machine (spec.md
// §4.3/§4.4). sessions is the connection-local session table: SETUP adds
// to it and TEARDOWN deletes from it, also reporting the removed session
// id via tornDown and didTeardown. Other requests leave the table as is.
//
// The dispatch table is exactly spec.md §4.3: transitions are governed
// solely by method × current state; anything not listed answers 500
// ConnectionError with echoed sequence and the session id (for an unknown
// session, the id the request carried).
func Dispatch(
	ctx context.Context,
	behavior NodeBehavior,
	sessions map[uint32]*Session,
	clientAddr *net.UDPAddr,
	req *wire.SignalingRequest,
	log *slog.Logger,
) (resp *wire.SignalingResponse, tornDown uint32, didTeardown bool) {
	if req.Method == wire.MethodSetup {
		return setup(ctx, behavior, sessions, clientAddr, req, log), 0, false
	}

	sess, ok := sessions[req.SessionID]
	if !ok {
		return errorResponse(req.SessionID, req.CSeq), 0, false
	}

	switch {
	case req.Method == wire.MethodPlay && (sess.state() == StateReady || sess.state() == StatePaused):
		return play(ctx, behavior, sess, req, log), 0, false

	case req.Method == wire.MethodPause && sess.state() == StatePlaying:
		return pause(ctx, behavior, sess, req, log), 0, false

	case req.Method == wire.MethodTeardown &&
		(sess.state() == StateReady || sess.state() == StatePlaying || sess.state() == StatePaused):
		resp := teardown(ctx, behavior, sess, req, log)
		delete(sessions, sess.ID)
		return resp, sess.ID, true

	default:
		return errorResponse(sess.ID, req.CSeq), 0, false
	}
}

func setup(
	ctx context.Context,
	behavior NodeBehavior,
	sessions map[uint32]*Session,
	clientAddr *net.UDPAddr,
	req *wire.SignalingRequest,
	log *slog.Logger,
) *wire.SignalingResponse {
	id := NewSessionID()

	if !behavior.VerifyFile(req.Filename) {
		return &wire.SignalingResponse{Status: wire.StatusSigFileNotFound, CSeq: req.CSeq, SessionID: id}
	}

	ch, status := behavior.GetOrCreateChannel(ctx, req.Filename, req.ServersToContact)
	if status != wire.StatusSigOk {
		return &wire.SignalingResponse{Status: status, CSeq: req.CSeq, SessionID: id}
	}

	sess := &Session{
		ID:         id,
		ClientAddr: clientAddr,
		Filename:   req.Filename,
		State:      StateReady,
		Channel:    ch,
	}
	ch.AddToRoom(sess.Subscriber())
	sessions[id] = sess

	log.Info("session setup", "session", id, "filename", req.Filename, "client", clientAddr)
	return &wire.SignalingResponse{Status: wire.StatusSigOk, CSeq: req.CSeq, SessionID: id}
}

func play(ctx context.Context, behavior NodeBehavior, sess *Session, req *wire.SignalingRequest, log *slog.Logger) *wire.SignalingResponse {
	// Join Playable before playback starts: a pump started while Playable
	// is still empty exits at its first iteration.
	sess.Channel.AddToPlayable(sess.Subscriber())

	status := behavior.StartPlayback(ctx, sess.Channel)
	if status != wire.StatusSigOk {
		sess.Channel.RemoveFromPlayable(sess.Subscriber())
		return &wire.SignalingResponse{Status: status, CSeq: req.CSeq, SessionID: sess.ID}
	}

	sess.setState(StatePlaying)

	log.Info("session playing", "session", sess.ID, "filename", sess.Filename)
	return &wire.SignalingResponse{Status: wire.StatusSigOk, CSeq: req.CSeq, SessionID: sess.ID}
}

func pause(ctx context.Context, behavior NodeBehavior, sess *Session, req *wire.SignalingRequest, log *slog.Logger) *wire.SignalingResponse {
	remaining := sess.Channel.RemoveFromPlayable(sess.Subscriber())
	sess.setState(StatePaused)

	if remaining == 0 {
		behavior.StopPlayback(ctx, sess.Channel)
	}

	log.Info("session paused", "session", sess.ID, "filename", sess.Filename)
	return &wire.SignalingResponse{Status: wire.StatusSigOk, CSeq: req.CSeq, SessionID: sess.ID}
}

func teardown(ctx context.Context, behavior NodeBehavior, sess *Session, req *wire.SignalingRequest, log *slog.Logger) *wire.SignalingResponse {
	remaining := sess.Channel.RemoveFromRoom(sess.Subscriber())

	if remaining == 0 {
		behavior.Channels().Remove(sess.Filename)
		behavior.TeardownChannel(ctx, sess.Channel)
	}

	log.Info("session torn down", "session", sess.ID, "filename", sess.Filename)
	return &wire.SignalingResponse{Status: wire.StatusSigOk, CSeq: req.CSeq, SessionID: sess.ID}
}
