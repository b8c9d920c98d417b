package mailer

import (
	"fmt"
	"log"

	"gopkg.in/gomail.v2"

	"bildoro-server/modules/common/config"
)

// Sender delivers a single message. Satisfied by *gomail.Dialer.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Service - 트랜잭션 메일 발송 (가입 환영, 구매 영수증)
type Service struct {
	sender Sender
	from   string
}

// NewService returns nil when SMTP is not configured; callers treat a nil
// service as "email disabled" and skip sends.
func NewService() *Service {
	cfg := config.GetConfig()

	if cfg.SMTPHost == "" {
		log.Println("⚠️ [Mailer] SMTP_HOST not configured - email disabled")
		return nil
	}

	log.Println("✅ [Mailer] Service initialized")
	return &Service{
		sender: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
		from:   cfg.SMTPFrom,
	}
}

// SendWelcome - 가입 환영 메일 (백그라운드, 실패는 로깅만)
func (s *Service) SendWelcome(email, username string, freeTokens int) {
	if s == nil {
		return
	}
	go func() {
		name := username
		if name == "" {
			name = "there"
		}
		subject := "Welcome to BildOro"
		htmlBody := fmt.Sprintf(`
			<html>
			<body>
				<h2>Welcome to BildOro, %s!</h2>
				<p>Your account is ready. You start with <strong>%d free tokens</strong> to try image generation.</p>
				<p>Head over to the studio and create your first image.</p>
			</body>
			</html>
		`, name, freeTokens)
		plainBody := fmt.Sprintf("Welcome to BildOro, %s!\n\nYour account is ready. You start with %d free tokens to try image generation.\n", name, freeTokens)

		if err := s.send(email, subject, htmlBody, plainBody); err != nil {
			log.Printf("⚠️ [Mailer] Failed to send welcome email to %s: %v", email, err)
		}
	}()
}

// SendPurchaseReceipt - 토큰 구매/구독 영수증 메일 (백그라운드)
func (s *Service) SendPurchaseReceipt(email, product string, tokens, newBalance int) {
	if s == nil {
		return
	}
	go func() {
		subject := "Your BildOro purchase"
		htmlBody := fmt.Sprintf(`
			<html>
			<body>
				<h2>Thanks for your purchase!</h2>
				<p>Product: <strong>%s</strong></p>
				<p>Tokens added: <strong>%d</strong></p>
				<p>New balance: <strong>%d tokens</strong></p>
			</body>
			</html>
		`, product, tokens, newBalance)
		plainBody := fmt.Sprintf("Thanks for your purchase!\n\nProduct: %s\nTokens added: %d\nNew balance: %d tokens\n", product, tokens, newBalance)

		if err := s.send(email, subject, htmlBody, plainBody); err != nil {
			log.Printf("⚠️ [Mailer] Failed to send receipt to %s: %v", email, err)
		}
	}()
}

func (s *Service) send(to, subject, htmlBody, plainBody string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", plainBody)
	m.AddAlternative("text/html", htmlBody)

	if err := s.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
