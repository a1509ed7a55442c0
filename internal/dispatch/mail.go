package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/vthunder/steward/internal/actions"
	"github.com/vthunder/steward/internal/bridge"
	"github.com/vthunder/steward/internal/logging"
	"github.com/vthunder/steward/internal/types"
)

func (e *Engine) sendEmail(ctx context.Context, t *turn, p *actions.SendEmail) step {
	s := e.deliver(ctx, t, p)
	switch {
	case s.status == StatusExecuted:
		t.result.Summary.EmailsSent++
	case s.status == StatusFailed && !errors.Is(s.err, ErrInvalid):
		t.result.Summary.EmailsFailed++
	}
	return s
}

func (e *Engine) deliver(ctx context.Context, t *turn, p *actions.SendEmail) step {
	email := types.Email{To: p.To, Cc: p.Cc, Subject: strings.TrimSpace(p.Subject), Body: p.Body}
	if msg, err := validateEmail(email); err != nil {
		return failed(err, msg)
	}
	if e.deps.Mail == nil {
		return failed(ErrUnavailable, "Email isn't set up, so I couldn't send that message.")
	}
	token, err := e.token(ctx, types.ServiceMail)
	if err != nil {
		return failed(err, describe("email", err))
	}

	if p.Preview || e.cfg.PreviewMail {
		if e.deps.Bridges == nil {
			return failed(ErrUnavailable, "I need you to review this email first, but there's no way to show it here, so I didn't send it.")
		}
		decision, err := e.deps.Bridges.Mail.Ask(ctx, bridge.MailPreview{
			Email:       email,
			Reason:      "Review before sending",
			SendLabel:   "Send",
			CancelLabel: "Don't send",
		})
		switch {
		case errors.Is(err, bridge.ErrTimeout):
			return cancelled(fmt.Sprintf("I didn't hear back, so I didn't send the email to %s.", joinAddresses(email.To)))
		case err != nil:
			return failed(err, describe("email", err))
		case !decision.Send:
			return cancelled("Okay, I didn't send the email.")
		}
		if decision.Edited != nil {
			email = *decision.Edited
			if msg, err := validateEmail(email); err != nil {
				return failed(err, msg)
			}
			logging.Info("dispatch", "mail edited before sending")
		}
	}

	id, err := mutate(ctx, e, t, "send_email", func(ctx context.Context, key string) (string, error) {
		return e.deps.Mail.SendEmail(ctx, token, email, key)
	})
	if err != nil {
		return failed(err, fmt.Sprintf("I couldn't send the email to %s. %s", joinAddresses(email.To), describe("email", err)))
	}

	sent, err := read(ctx, e, "verify_email", func(ctx context.Context) (bool, error) {
		return e.deps.Mail.IsSent(ctx, token, id)
	})
	if err != nil || !sent {
		return e.unverified(types.ServiceMail, err,
			fmt.Sprintf("I sent the email to %s but couldn't find it in your Sent folder. Please check before resending.", joinAddresses(email.To)))
	}
	return changed(types.ServiceMail, fmt.Sprintf("Email sent to %s.", joinAddresses(email.To)))
}

func validateEmail(email types.Email) (string, error) {
	if len(email.To) == 0 {
		return "I need at least one recipient to send an email.", fmt.Errorf("%w: no recipients", ErrInvalid)
	}
	for _, addr := range append(append([]string{}, email.To...), email.Cc...) {
		if _, err := mail.ParseAddress(addr); err != nil {
			return fmt.Sprintf("%q doesn't look like a valid email address.", addr), fmt.Errorf("%w: recipient %q: %v", ErrInvalid, addr, err)
		}
	}
	if email.Subject == "" && strings.TrimSpace(email.Body) == "" {
		return "The email has no subject or body, so I didn't send it.", fmt.Errorf("%w: empty email", ErrInvalid)
	}
	return "", nil
}

func joinAddresses(addrs []string) string {
	return strings.Join(addrs, ", ")
}
