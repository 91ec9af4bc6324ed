package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrSMSNotConfigured is returned when no SMS gateway URL is set.
var ErrSMSNotConfigured = errors.New("sms gateway is not configured")

// SMSService posts verification codes to the SMS gateway.
type SMSService struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *zap.Logger
}

// NewSMSService creates a new SMSService.
func NewSMSService(baseURL, apiKey string, log *zap.Logger) *SMSService {
	return &SMSService{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

type smsRequest struct {
	Phone            string `json:"phone"`
	VerificationCode string `json:"verificationCode"`
	Message          string `json:"message"`
}

// VerificationMessage is the text sent with every code.
func VerificationMessage(code string) string {
	return fmt.Sprintf("Tu código de verificación es %s. Vence en 10 minutos.", code)
}

// SendVerificationCode sends code to phone (E.164).
func (s *SMSService) SendVerificationCode(ctx context.Context, phone, code string) error {
	if s.baseURL == "" {
		return ErrSMSNotConfigured
	}

	payload, err := json.Marshal(smsRequest{
		Phone:            phone,
		VerificationCode: code,
		Message:          VerificationMessage(code),
	})
	if err != nil {
		return fmt.Errorf("sms request marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/send-verification", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("sms request build: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms send: status %d, body: %s", resp.StatusCode, string(body))
	}

	s.log.Debug("sms: verification code accepted", zap.String("phone", phone))
	return nil
}
