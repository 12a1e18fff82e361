package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/example/medsupply/internal/models"
	"github.com/example/medsupply/pkg/logger"
)

// TelegramService pushes admin notifications for new orders and
// received payments. Sends are best-effort: a delivery failure is
// logged and dropped.
type TelegramService struct {
	botToken    string
	adminChatID string
	httpClient  *http.Client
	log         logger.Logger
}

// NewTelegramService creates a TelegramService. Empty credentials make
// every send a silent no-op.
func NewTelegramService(botToken, adminChatID string, log logger.Logger) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		log:         log.WithField("component", "telegram"),
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendToAdmin sends a message to the configured admin chat.
func (s *TelegramService) SendToAdmin(text string) error {
	if s.botToken == "" || s.adminChatID == "" {
		return nil
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", s.botToken)
	body, err := json.Marshal(telegramMessage{
		ChatID:    s.adminChatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	resp, err := s.httpClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		s.log.WithField("error", err.Error()).Warn("telegram send failed")
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.log.WithField("status", resp.StatusCode).Warn("telegram returned non-200")
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}
	return nil
}

func formatMoney(amount float64) string {
	return fmt.Sprintf("$%.2f", amount)
}

// NotifyNewOrder reports a freshly placed order to the admin chat.
func (s *TelegramService) NotifyNewOrder(order models.Order, customer models.User, credit *ReferralCredit) {
	var items strings.Builder
	for i, it := range order.Items {
		name := it.Name
		if name == "" {
			name = it.ProductID
		}
		items.WriteString(fmt.Sprintf("%d. <b>%s</b>  %d x %s\n",
			i+1, name, it.Quantity, formatMoney(it.Price)))
	}

	referralLine := ""
	if credit != nil {
		referralLine = fmt.Sprintf("\n<b>Referral:</b> %s earned %s",
			credit.ReferrerName, formatMoney(credit.Commission))
	}

	message := fmt.Sprintf(`<b>New order %s</b>
<b>Customer:</b> %s (%s)
<b>Items:</b>
%s<b>Total:</b> %s%s`,
		order.ID,
		customer.FullName(),
		customer.Email,
		items.String(),
		formatMoney(order.Total),
		referralLine,
	)

	if err := s.SendToAdmin(strings.TrimSpace(message)); err != nil {
		s.log.WithField("order", order.ID).Warn("new-order notification failed")
	}
}

// NotifyPaymentReceived reports a confirmed payment to the admin chat.
func (s *TelegramService) NotifyPaymentReceived(order models.Order) {
	message := fmt.Sprintf(`<b>Payment received</b>
<b>Order:</b> %s
<b>Amount:</b> %s
<b>Payment ref:</b> %s`,
		order.ID,
		formatMoney(order.Total),
		order.PaymentIntentID,
	)

	if err := s.SendToAdmin(strings.TrimSpace(message)); err != nil {
		s.log.WithField("order", order.ID).Warn("payment notification failed")
	}
}
