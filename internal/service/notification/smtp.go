package notification

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	defaultSendTimeout     = 10 * time.Second
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 30 * time.Second
)

// SMTPConfig описывает подключение к почтовому серверу.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// Enabled сообщает, достаточно ли настроек для отправки.
func (c SMTPConfig) Enabled() bool {
	return strings.TrimSpace(c.Host) != "" && strings.TrimSpace(c.From) != ""
}

// SendMailFunc совпадает по сигнатуре с smtp.SendMail; подменяется в тестах.
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Option настраивает SMTPNotifier.
type Option func(*SMTPNotifier)

// WithSendMail подменяет транспорт отправки.
func WithSendMail(fn SendMailFunc) Option {
	return func(n *SMTPNotifier) {
		n.sendMail = fn
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(n *SMTPNotifier) {
		n.logger = logger
	}
}

// WithBreakerSettings задаёт порог ошибок подряд и время, на которое размыкается цепь.
func WithBreakerSettings(consecutiveFailures uint32, cooldown time.Duration) Option {
	return func(n *SMTPNotifier) {
		n.breakerFailures = consecutiveFailures
		n.breakerCooldown = cooldown
	}
}

// SMTPNotifier отправляет письма через SMTP. Серия сбоев размыкает circuit breaker,
// и следующие письма сразу считаются неотправленными, не дожидаясь таймаута сервера.
type SMTPNotifier struct {
	cfg             SMTPConfig
	sendMail        SendMailFunc
	breaker         *gobreaker.CircuitBreaker[struct{}]
	breakerFailures uint32
	breakerCooldown time.Duration
	logger          *log.Entry
}

// NewSMTPNotifier создаёт notifier; при пустых настройках используйте NoopNotifier.
func NewSMTPNotifier(cfg SMTPConfig, opts ...Option) *SMTPNotifier {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSendTimeout
	}

	n := &SMTPNotifier{
		cfg:             cfg,
		sendMail:        smtp.SendMail,
		breakerFailures: defaultBreakerFailures,
		breakerCooldown: defaultBreakerCooldown,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.logger == nil {
		n.logger = log.WithField("component", "smtp-notifier")
	}

	failures := n.breakerFailures
	n.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "smtp",
		Timeout: n.breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			n.logger.WithFields(log.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("smtp circuit breaker state changed")
		},
	})
	return n
}

// Send отправляет письмо и возвращает true только при успешной отправке.
func (n *SMTPNotifier) Send(ctx context.Context, to, subject, html string) bool {
	if strings.TrimSpace(to) == "" {
		n.logger.WithField("subject", subject).Warn("skip email without recipient")
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	_, err := n.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, n.deliver(ctx, to, subject, html)
	})
	if err != nil {
		entry := n.logger.WithError(err).WithFields(log.Fields{
			"to":      to,
			"subject": subject,
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			entry.Warn("email skipped, smtp circuit open")
		} else {
			entry.Error("send email failed")
		}
		return false
	}
	return true
}

func (n *SMTPNotifier) deliver(ctx context.Context, to, subject, html string) error {
	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	msg := buildMessage(n.cfg.From, to, subject, html)

	done := make(chan error, 1)
	go func() {
		done <- n.sendMail(addr, auth, n.cfg.From, []string{to}, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send: %w", ctx.Err())
	}
}

func buildMessage(from, to, subject, html string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(html)
	return []byte(b.String())
}

var _ domain.Notifier = (*SMTPNotifier)(nil)
