package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultTelegramAPI = "https://api.telegram.org"

// TelegramService handles sending notifications to Telegram.
type TelegramService struct {
	apiBase     string
	botToken    string
	adminChatID string
	client      *http.Client
	log         *zap.Logger
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string, log *zap.Logger) *TelegramService {
	return &TelegramService{
		apiBase:     defaultTelegramAPI,
		botToken:    botToken,
		adminChatID: adminChatID,
		client:      &http.Client{Timeout: 10 * time.Second},
		log:         log,
	}
}

// Enabled reports whether both the bot token and the admin chat are set.
func (s *TelegramService) Enabled() bool {
	return s.botToken != "" && s.adminChatID != ""
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to specified chat.
func (s *TelegramService) SendMessage(ctx context.Context, chatID, text string) error {
	if s.botToken == "" {
		s.log.Debug("telegram: bot token not configured")
		return nil
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBase, s.botToken)
	body, err := json.Marshal(telegramMessage{ChatID: chatID, Text: text, ParseMode: "HTML"})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}
	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(ctx context.Context, text string) error {
	if s.adminChatID == "" {
		s.log.Debug("telegram: admin chat id not configured")
		return nil
	}
	return s.SendMessage(ctx, s.adminChatID, text)
}

// LeadNotification describes a verified buyer or seller.
type LeadNotification struct {
	Kind    string
	Name    string
	Phone   string
	Email   string
	Vehicle string
	Amount  int64
	Detail  string
}

// FormatPrice formats price with currency and thousand separators.
func FormatPrice(amount int64, currency string) string {
	if currency == "" {
		currency = "MXN"
	}
	sign := ""
	if amount < 0 {
		sign, amount = "-", -amount
	}
	str := fmt.Sprintf("%d", amount)

	var result strings.Builder
	length := len(str)
	for i, digit := range str {
		if i > 0 && (length-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(digit)
	}

	return "$" + sign + result.String() + " " + currency
}

// NotifyLead sends a new-lead alert to the admin chat.
func (s *TelegramService) NotifyLead(ctx context.Context, lead LeadNotification) error {
	if s.adminChatID == "" {
		return nil
	}

	title := "🚗 NUEVA COTIZACIÓN"
	if lead.Kind == "valuation" {
		title = "🏷️ NUEVA VALUACIÓN"
	}

	message := fmt.Sprintf(`<b>%s</b>
<b>👤 Cliente:</b> %s
<b>📞 Teléfono:</b> %s
<b>✉️ Email:</b> %s
<b>🚘 Vehículo:</b> %s
<b>💰 Monto:</b> %s
%s
━━━━━━━━━━━━━━━━━━`,
		title,
		html.EscapeString(lead.Name),
		html.EscapeString(lead.Phone),
		html.EscapeString(lead.Email),
		html.EscapeString(lead.Vehicle),
		FormatPrice(lead.Amount, "MXN"),
		html.EscapeString(lead.Detail),
	)

	return s.SendToAdmin(ctx, strings.TrimSpace(message))
}
