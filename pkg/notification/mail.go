package notification

import (
	"context"
	"errors"
	"net/textproto"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gopkg.in/gomail.v2"

	"Lifeline/pkg/logger"
	"Lifeline/pkg/metrics"
)

type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// PoolConfig bounds the outbound channel so a fan-out burst cannot
// overwhelm the upstream relay.
type PoolConfig struct {
	MaxConnections int           // concurrent SMTP sessions
	MaxMessages    int           // messages per session before redialing
	RateLimit      rate.Limit    // messages per second across the pool
	MaxRetries     int           // attempts per message, transient failures only
	RetryDelay     time.Duration // first backoff, grows x1.5 per attempt
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConnections: 5,
		MaxMessages:    100,
		RateLimit:      rate.Limit(5),
		MaxRetries:     3,
		RetryDelay:     2 * time.Second,
	}
}

type Message struct {
	To      []string
	Subject string
	Text    string
	HTML    string
}

// Receipt is returned on successful delivery. Failed sends yield nil, never
// an error: email is best-effort and must not fail the caller's operation.
type Receipt struct {
	To     []string
	SentAt time.Time
}

// Sender performs one delivery attempt. It exists so tests and alternative
// providers can be injected in place of the SMTP client.
type Sender interface {
	Send(m *Message) error
}

// Mailer is the pooled outbound email channel.
type Mailer struct {
	cfg    MailConfig
	pool   PoolConfig
	sender Sender
	sem    chan struct{}
	limit  *rate.Limiter
	sleep  func(time.Duration)
}

func NewMailer(cfg MailConfig, pool PoolConfig, sender Sender) *Mailer {
	if pool.MaxConnections <= 0 {
		pool.MaxConnections = 1
	}
	if pool.MaxRetries <= 0 {
		pool.MaxRetries = 1
	}
	if sender == nil {
		sender = newSMTPSender(cfg, pool.MaxMessages)
	}
	burst := pool.MaxConnections
	if pool.RateLimit <= 0 {
		pool.RateLimit = rate.Inf
	}
	return &Mailer{
		cfg:    cfg,
		pool:   pool,
		sender: sender,
		sem:    make(chan struct{}, pool.MaxConnections),
		limit:  rate.NewLimiter(pool.RateLimit, burst),
		sleep:  time.Sleep,
	}
}

// Send delivers one message, retrying transient relay failures with
// multiplicative backoff. Only the retrying call sleeps; concurrent sends
// hold their own pool slot and proceed independently.
func (m *Mailer) Send(ctx context.Context, to, subject, text, html string) *Receipt {
	return m.send(ctx, &Message{To: []string{to}, Subject: subject, Text: text, HTML: html})
}

func (m *Mailer) send(ctx context.Context, msg *Message) *Receipt {
	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		logger.Warn("mail dropped, context done", zap.Strings("to", msg.To))
		return nil
	}
	defer func() { <-m.sem }()

	if err := m.limit.Wait(ctx); err != nil {
		logger.Warn("mail dropped, rate wait aborted", zap.Strings("to", msg.To))
		return nil
	}

	delay := m.pool.RetryDelay
	for attempt := 1; attempt <= m.pool.MaxRetries; attempt++ {
		metrics.EmailAttempts.Inc()
		err := m.sender.Send(msg)
		if err == nil {
			return &Receipt{To: msg.To, SentAt: time.Now()}
		}
		if !IsTransient(err) {
			metrics.EmailFailures.Inc()
			logger.Error("mail permanently failed",
				zap.Strings("to", msg.To), zap.Error(err))
			return nil
		}
		if attempt == m.pool.MaxRetries {
			break
		}
		metrics.EmailRetries.Inc()
		logger.Warn("transient mail error, retrying",
			zap.Int("attempt", attempt), zap.Int("max", m.pool.MaxRetries), zap.Error(err))
		m.sleep(delay)
		delay = time.Duration(float64(delay) * 1.5)
	}
	metrics.EmailFailures.Inc()
	logger.Error("mail failed after retries",
		zap.Strings("to", msg.To), zap.Int("attempts", m.pool.MaxRetries))
	return nil
}

// IsTransient classifies a delivery error as retryable. SMTP 421 is the
// relay's "try again later"; the remaining 4xx codes are treated the same.
func IsTransient(err error) bool {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code == 421 || (tpErr.Code >= 400 && tpErr.Code < 500)
	}
	var tr *TransientError
	return errors.As(err, &tr)
}

// TransientError marks an error as retryable for senders that cannot
// surface an SMTP status code.
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// smtpSender keeps one SMTP session open per Mailer slot and redials after
// maxMessages deliveries.
type smtpSender struct {
	dialer      *gomail.Dialer
	from        string
	maxMessages int

	mu     sync.Mutex
	conn   gomail.SendCloser
	sent   int
	closed bool
}

func newSMTPSender(cfg MailConfig, maxMessages int) *smtpSender {
	return &smtpSender{
		dialer:      gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:        cfg.From,
		maxMessages: maxMessages,
	}
}

func (s *smtpSender) Send(m *Message) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", m.To...)
	msg.SetHeader("Subject", m.Subject)
	msg.SetBody("text/plain", m.Text)
	if m.HTML != "" {
		msg.AddAlternative("text/html", m.HTML)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil && s.maxMessages > 0 && s.sent >= s.maxMessages {
		_ = s.conn.Close()
		s.conn = nil
		s.sent = 0
	}
	if s.conn == nil {
		conn, err := s.dialer.Dial()
		if err != nil {
			return err
		}
		s.conn = conn
	}
	if err := gomail.Send(s.conn, msg); err != nil {
		_ = s.conn.Close()
		s.conn = nil
		s.sent = 0
		return err
	}
	s.sent++
	return nil
}

func (s *smtpSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil && !s.closed {
		s.closed = true
		return s.conn.Close()
	}
	return nil
}
