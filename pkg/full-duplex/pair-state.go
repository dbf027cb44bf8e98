package fullduplexproxy

import (
	klog "k8s.io/klog/v2"

	"github.com/koding/wsrelay/pkg/interfaces"
)

// targetSession returns the target session and the state of the reference.
func (p *pairState) targetSession() (interfaces.Session, targetState) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.target, p.targetState
}

// setTarget stores session if no target was ever associated with the pair.
func (p *pairState) setTarget(session interfaces.Session) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.targetState != targetAbsent {
		return false
	}
	p.target = session
	p.targetState = targetPresent
	return true
}

// markTargetClosed moves a present target to the closed state and returns it.
func (p *pairState) markTargetClosed() interfaces.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.targetState != targetPresent {
		return nil
	}
	p.targetState = targetClosed
	return p.target
}

// closeTarget closes the target session if one is present. Absent or already
// closed targets are left alone.
func (p *pairState) closeTarget(reason interfaces.CloseReason) {
	target := p.markTargetClosed()
	if target == nil || !target.IsOpen() {
		return
	}
	closeSession("target", target, reason)
}

// closeClient closes the client session if it is still open.
func (p *pairState) closeClient(reason interfaces.CloseReason) {
	if !p.client.IsOpen() {
		return
	}
	closeSession("client", p.client, reason)
}

// closeSession closes session, logging and discarding any error since the
// session is being thrown away.
func closeSession(side string, session interfaces.Session, reason interfaces.CloseReason) {
	klog.V(5).Infof("wsrelay: [%s %s] closing session (code: %d)", side, session.ID(), reason.Code)
	if err := session.CloseWithReason(reason); err != nil {
		klog.Errorf("wsrelay: [%s %s] error while closing session: %v\n", side, session.ID(), err)
		return
	}
	klog.V(2).Infof("wsrelay: [%s %s] session closed", side, session.ID())
}
