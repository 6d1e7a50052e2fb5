package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// WhatChimpSender sends through the WhatChimp HTTP API. It carries one media item per message.
type WhatChimpSender struct {
	apiURL string
	token  string
	client *http.Client
}

func NewWhatChimpSender(apiURL, token string, client *http.Client) *WhatChimpSender {
	return &WhatChimpSender{apiURL: apiURL, token: token, client: client}
}

type whatChimpPayload struct {
	Number   string `json:"number"`
	Type     string `json:"type"`
	Message  string `json:"message,omitempty"`
	MediaURL string `json:"media_url,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

func (s *WhatChimpSender) Send(ctx context.Context, msg Message) (*Receipt, error) {
	number := digitsOnly(msg.To)
	if number == "" {
		return nil, ErrNoRecipient
	}
	payload := whatChimpPayload{Number: number, Type: "text", Message: msg.Body}
	if len(msg.MediaURLs) > 0 {
		payload = whatChimpPayload{Number: number, Type: "media", MediaURL: msg.MediaURLs[0], Caption: msg.Body}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode whatchimp payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to build whatchimp request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whatchimp request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("whatchimp returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out struct {
		ID        string `json:"id"`
		MessageID string `json:"message_id"`
	}
	_ = json.Unmarshal(body, &out)
	id := out.MessageID
	if id == "" {
		id = out.ID
	}
	return &Receipt{Provider: "whatchimp", ID: id}, nil
}
