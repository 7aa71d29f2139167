package service

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"Lifeline/internal/models"
	"Lifeline/pkg/constant"
	"Lifeline/pkg/notification"
	"Lifeline/pkg/util"

	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := util.InitDatabase("sqlite", dsn)
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, name, role string, verified, approved bool) *models.User {
	t.Helper()
	hash, err := HashPassword("secret123")
	require.NoError(t, err)
	u := &models.User{
		Name:         name,
		Email:        name + "@example.com",
		PasswordHash: hash,
		Phone:        "5550001111",
		Carrier:      "att",
		Role:         role,
		IsVerified:   verified,
		IsApproved:   approved,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func seedResponder(t *testing.T, db *gorm.DB, name string) *models.User {
	return seedUser(t, db, name, constant.RoleResponder, true, true)
}

type pushed struct {
	UserID string
	Event  string
	Data   interface{}
}

// fakePusher stands in for the websocket hub. Only users marked online
// report a successful push.
type fakePusher struct {
	mu         sync.Mutex
	online     map[string]bool
	sent       []pushed
	broadcasts []pushed
}

func newFakePusher(onlineUsers ...string) *fakePusher {
	online := make(map[string]bool, len(onlineUsers))
	for _, id := range onlineUsers {
		online[id] = true
	}
	return &fakePusher{online: online}
}

func (p *fakePusher) SendToUser(userID, event string, data interface{}) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, pushed{UserID: userID, Event: event, Data: data})
	return p.online[userID]
}

func (p *fakePusher) Broadcast(event string, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.broadcasts = append(p.broadcasts, pushed{Event: event, Data: data})
}

func (p *fakePusher) sentTo(userID string) []pushed {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []pushed
	for _, e := range p.sent {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

// recordingSender captures outbound mail instead of dialing a relay.
type recordingSender struct {
	mu   sync.Mutex
	msgs []*notification.Message
	err  error
}

func (s *recordingSender) Send(m *notification.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, m)
	return nil
}

func (s *recordingSender) messages() []*notification.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*notification.Message(nil), s.msgs...)
}

func newTestMailer(sender notification.Sender) *notification.Mailer {
	pool := notification.DefaultPoolConfig()
	pool.MaxRetries = 1
	return notification.NewMailer(notification.MailConfig{From: "noreply@example.com"}, pool, sender)
}
