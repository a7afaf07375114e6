package session

type NotificationKind string

const (
	NotifyError             NotificationKind = "error"
	NotifySuccess           NotificationKind = "success"
	NotifyConnectionWarning NotificationKind = "connection_warning"
)

type notification struct {
	text string
	seq  uint64
}

// notify sets the message for a kind and restarts that kind's expiry
// timer. Each kind owns an independent timer; replacing a message
// cancels the pending expiry so only the newest one can fire. The
// sequence number guards against a stale fire that raced the stop.
func (s *Session) notify(kind NotificationKind, text string) {
	if timer, ok := s.notifTimers[kind]; ok {
		timer.Stop()
	}
	s.notifSeq++
	seq := s.notifSeq
	s.notifs[kind] = notification{text: text, seq: seq}

	timer := s.clock.NewTimer(notificationTTL)
	s.notifTimers[kind] = timer
	go func() {
		select {
		case <-timer.Chan():
			s.post(notifExpiredMsg{kind: kind, seq: seq})
		case <-s.stopped:
			timer.Stop()
		}
	}()
}

func (s *Session) handleNotifExpired(m notifExpiredMsg) {
	current, ok := s.notifs[m.kind]
	if !ok || current.seq != m.seq {
		return
	}
	delete(s.notifs, m.kind)
	delete(s.notifTimers, m.kind)
}
