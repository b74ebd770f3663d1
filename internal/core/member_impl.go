package core

import "github.com/dkeye/Chat/internal/domain"

// memberSession implements MemberSession by pairing a user id with its transport.
type memberSession struct {
	user domain.UserID
	conn SignalConnection
}

func NewMemberSession(user domain.UserID, conn SignalConnection) MemberSession {
	return &memberSession{user: user, conn: conn}
}

func (m *memberSession) User() domain.UserID      { return m.user }
func (m *memberSession) Signal() SignalConnection { return m.conn }
