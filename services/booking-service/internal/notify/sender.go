package notify

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
)

// Payload is the JSON body posted to a business webhook for a booking.
type Payload struct {
	ClientName      string   `json:"client_name"`
	ClientPhone     string   `json:"client_phone"`
	ClientEmail     string   `json:"client_email"`
	Service         string   `json:"service"`
	ServiceDuration int      `json:"service_duration"`
	ServicePrice    *float64 `json:"service_price"`
	Date            string   `json:"date"`
	Time            string   `json:"time"`
	Business        string   `json:"business"`
	AppointmentID   string   `json:"appointment_id"`
	Status          string   `json:"status"`
}

type Sender interface {
	Send(ctx context.Context, url string, p Payload) error
}

const userAgent = "slotbook-webhook/1.0"

type WebhookSender struct {
	http *http.Client
}

func NewWebhookSender(timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSender{
		http: &http.Client{Timeout: timeout},
	}
}

func (s *WebhookSender) Send(ctx context.Context, url string, p Payload) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return errors.New("webhook url not configured")
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
