package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrEmailNotConfigured is returned when no email API URL is set.
var ErrEmailNotConfigured = errors.New("email service is not configured")

// EmailMessage is the payload the email API accepts.
type EmailMessage struct {
	To          string `json:"to"`
	ToName      string `json:"toName"`
	Subject     string `json:"subject"`
	HTMLContent string `json:"htmlContent"`
}

// EmailService delivers transactional mail with linear backoff between retries.
type EmailService struct {
	baseURL    string
	apiKey     string
	client     *http.Client
	retryCount int
	backoff    time.Duration
	log        *zap.Logger
}

func NewEmailService(baseURL, apiKey string, retryCount int, log *zap.Logger) *EmailService {
	if retryCount < 0 {
		retryCount = 0
	}
	return &EmailService{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     apiKey,
		client:     &http.Client{Timeout: 10 * time.Second},
		retryCount: retryCount,
		backoff:    time.Second,
		log:        log,
	}
}

// Send posts msg, retrying up to retryCount more times.
func (s *EmailService) Send(ctx context.Context, msg EmailMessage) error {
	if s.baseURL == "" {
		return ErrEmailNotConfigured
	}

	var lastErr error
	for attempt := 0; attempt <= s.retryCount; attempt++ {
		if attempt > 0 {
			s.log.Info("email: retrying", zap.Int("attempt", attempt), zap.String("to", msg.To))
			select {
			case <-ctx.Done():
				return fmt.Errorf("email send: %w", ctx.Err())
			case <-time.After(time.Duration(attempt) * s.backoff):
			}
		}

		err := s.sendOnce(ctx, msg)
		if err == nil {
			return nil
		}
		lastErr = err
		s.log.Warn("email: attempt failed", zap.Int("attempt", attempt), zap.String("to", msg.To), zap.Error(err))
	}
	return fmt.Errorf("email send failed after %d attempts: %w", s.retryCount+1, lastErr)
}

func (s *EmailService) sendOnce(ctx context.Context, msg EmailMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/send-email", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send email request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}
	return nil
}

// QuoteSummary feeds the quote email template.
type QuoteSummary struct {
	Name           string
	Folio          string
	Car            string
	CarPrice       int64
	DownPayment    int64
	LoanAmount     int64
	Term           int
	AnnualRate     float64
	MonthlyPayment int64
	TotalCost      int64
}

var quoteEmailTemplate = template.Must(template.New("quote").Funcs(template.FuncMap{
	"money": func(v int64) string { return FormatPrice(v, "MXN") },
}).Parse(`<h2>Hola {{.Name}}, esta es tu cotización {{.Folio}}</h2>
<p><b>{{.Car}}</b></p>
<table>
<tr><td>Precio</td><td>{{money .CarPrice}}</td></tr>
<tr><td>Enganche</td><td>{{money .DownPayment}}</td></tr>
<tr><td>Monto a financiar</td><td>{{money .LoanAmount}}</td></tr>
<tr><td>Plazo</td><td>{{.Term}} meses</td></tr>
<tr><td>Tasa anual</td><td>{{printf "%.2f" .AnnualRate}}%</td></tr>
<tr><td>Mensualidad</td><td><b>{{money .MonthlyPayment}}</b></td></tr>
<tr><td>Costo total</td><td>{{money .TotalCost}}</td></tr>
</table>`))

// RenderQuoteEmail builds the subject and HTML body for a quote summary.
func RenderQuoteEmail(q QuoteSummary) (subject, html string, err error) {
	var buf bytes.Buffer
	if err := quoteEmailTemplate.Execute(&buf, q); err != nil {
		return "", "", fmt.Errorf("render quote email: %w", err)
	}
	return fmt.Sprintf("Tu cotización %s", q.Folio), buf.String(), nil
}
