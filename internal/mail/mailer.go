// Package mail delivers one rendered summary per call through the
// provider's send endpoint, authorized by the recipient's own credential.
package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Areeb3176/schedule-agent/internal/domain"
)

// Mailer submits HTML email through the mail API. One attempt per call;
// retries are the caller's decision.
type Mailer struct {
	baseURL  string
	fromName string
	log      *zap.Logger
	client   *http.Client
}

// New creates a Mailer with a bounded delivery timeout.
func New(baseURL, fromName string, log *zap.Logger) *Mailer {
	return &Mailer{
		baseURL:  baseURL,
		fromName: fromName,
		log:      log,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Send builds a single MIME message and posts it. Failures come back as
// *domain.DeliveryError with the reason the audit log records verbatim.
func (m *Mailer) Send(ctx context.Context, to, subject, html string, cred domain.Credential) error {
	raw := buildMessage(m.fromName, to, subject, html)
	body, err := json.Marshal(map[string]string{
		"raw": base64.URLEncoding.EncodeToString([]byte(raw)),
	})
	if err != nil {
		return &domain.DeliveryError{Reason: domain.DeliveryUnexpected, Err: err}
	}

	url := m.baseURL + "/gmail/v1/users/me/messages/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &domain.DeliveryError{Reason: domain.DeliveryUnexpected, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return &domain.DeliveryError{Reason: domain.DeliveryTransportTimeout, Err: err}
		}
		return &domain.DeliveryError{Reason: domain.DeliveryUnexpected, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		msg := strings.TrimSpace(string(payload))
		// 403 means the grant lacks send permission; a token refresh
		// cannot fix that, the user has to re-authorize.
		if resp.StatusCode == http.StatusForbidden {
			m.log.Warn("recipient grant lacks send scope", zap.String("to", to))
			return &domain.DeliveryError{
				Reason: domain.DeliveryInsufficientScope,
				Msg:    fmt.Sprintf("status %d: %s", resp.StatusCode, msg),
			}
		}
		return &domain.DeliveryError{
			Reason: domain.DeliveryProviderError,
			Msg:    fmt.Sprintf("status %d: %s", resp.StatusCode, msg),
		}
	}

	m.log.Debug("email delivered", zap.String("to", to), zap.String("subject", subject))
	return nil
}

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}

// buildMessage assembles the RFC 822 wire form of one HTML email.
func buildMessage(fromName, to, subject, html string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s <me>\r\n", fromName)
	fmt.Fprintf(&sb, "To: %s\r\n", to)
	fmt.Fprintf(&sb, "Subject: %s\r\n", subject)
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(html)
	return sb.String()
}
