package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Roland735/rentbot/internal/utils"
)

// TwilioConfig holds the Messages API credentials.
type TwilioConfig struct {
	AccountSID   string
	AuthToken    string
	WhatsAppFrom string
	APIBase      string
}

// TwilioSender sends through the Twilio Messages API.
type TwilioSender struct {
	cfg    TwilioConfig
	client *http.Client
}

func NewTwilioSender(cfg TwilioConfig, client *http.Client) *TwilioSender {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.twilio.com"
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	return &TwilioSender{cfg: cfg, client: client}
}

type twilioResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *TwilioSender) form(msg Message) (url.Values, error) {
	form := url.Values{}
	form.Set("From", utils.WhatsAppAddress(s.cfg.WhatsAppFrom))
	form.Set("To", utils.WhatsAppAddress(msg.To))
	if msg.ContentSID != "" {
		form.Set("ContentSid", msg.ContentSID)
		if len(msg.ContentVariables) > 0 {
			vars, err := json.Marshal(msg.ContentVariables)
			if err != nil {
				return nil, fmt.Errorf("failed to encode content variables: %w", err)
			}
			form.Set("ContentVariables", string(vars))
		}
		return form, nil
	}
	form.Set("Body", msg.Body)
	for _, m := range capMedia(msg.MediaURLs) {
		form.Add("MediaUrl", m)
	}
	return form, nil
}

func (s *TwilioSender) Send(ctx context.Context, msg Message) (*Receipt, error) {
	if msg.To == "" {
		return nil, ErrNoRecipient
	}
	form, err := s.form(msg)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.cfg.APIBase, url.PathEscape(s.cfg.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build twilio request: %w", err)
	}
	req.SetBasicAuth(s.cfg.AccountSID, s.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("twilio request failed: %w", err)
	}
	defer resp.Body.Close()

	var out twilioResponse
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	_ = json.Unmarshal(body, &out)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if out.Message != "" {
			return nil, fmt.Errorf("twilio returned HTTP %d (code %d): %s", resp.StatusCode, out.Code, out.Message)
		}
		return nil, fmt.Errorf("twilio returned HTTP %d", resp.StatusCode)
	}
	return &Receipt{Provider: "twilio", ID: out.SID}, nil
}
