// Package payments talks to Paynow's mobile (Express Checkout) interface.
package payments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

var ErrInvalidPhone = errors.New("invalid mobile number")

// ProviderError is a refusal reported by Paynow; Message is safe to show the payer.
type ProviderError struct {
	Message string
}

func (e *ProviderError) Error() string { return "paynow: " + e.Message }

type Method string

const (
	MethodEcoCash  Method = "ecocash"
	MethodOneMoney Method = "onemoney"
)

var mobilePattern = regexp.MustCompile(`^07\d{8}$`)

// NormalizeMobile converts +263/263 numbers to the local 07XXXXXXXX form Paynow expects.
func NormalizeMobile(phone string) (string, error) {
	p := strings.Join(strings.Fields(phone), "")
	switch {
	case strings.HasPrefix(p, "+263"):
		p = "0" + strings.TrimPrefix(p, "+263")
	case strings.HasPrefix(p, "263"):
		p = "0" + strings.TrimPrefix(p, "263")
	}
	if !mobilePattern.MatchString(p) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, phone)
	}
	return p, nil
}

// MethodFor picks the wallet by network prefix.
func MethodFor(mobile string) Method {
	if strings.HasPrefix(mobile, "071") {
		return MethodOneMoney
	}
	return MethodEcoCash
}

type Config struct {
	IntegrationID  string
	IntegrationKey string
	InitiateURL    string
	ResultURL      string
	ReturnURL      string
	AuthEmail      string
	TestMode       bool
}

type InitiateRequest struct {
	Reference   string
	Amount      float64
	Phone       string
	Email       string
	Description string
}

// Simulation describes the callback a test-mode payment will receive.
type Simulation struct {
	Status string
	After  time.Duration
}

type InitiateResult struct {
	PollURL         string
	PaynowReference string
	Instructions    string
	Method          Method
	Simulation      *Simulation
}

// Gateway starts push payments.
type Gateway interface {
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
}

// Paynow implements Gateway over HTTP.
type Paynow struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

func NewPaynow(cfg Config, client *http.Client, logger *zap.Logger) *Paynow {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Paynow{cfg: cfg, client: client, logger: logger}
}

type testNumber struct {
	sim *Simulation
	err string
}

// Sandbox numbers answered locally in test mode.
var testNumbers = map[string]testNumber{
	"0771111111": {sim: &Simulation{Status: StatusPaid, After: 5 * time.Second}},
	"0772222222": {sim: &Simulation{Status: StatusPaid, After: 30 * time.Second}},
	"0773333333": {sim: &Simulation{Status: StatusFailed, After: 30 * time.Second}},
	"0774444444": {err: "Insufficient balance"},
}

func (p *Paynow) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	mobile, err := NormalizeMobile(req.Phone)
	if err != nil {
		return nil, err
	}
	method := MethodFor(mobile)
	email := req.Email
	if email == "" {
		email = p.cfg.AuthEmail
	}
	amount := strconv.FormatFloat(req.Amount, 'f', 2, 64)

	p.logger.Info("paynow initiate",
		zap.String("reference", req.Reference),
		zap.String("amount", amount),
		zap.String("method", string(method)))

	if p.cfg.TestMode {
		if tn, ok := testNumbers[mobile]; ok {
			if tn.err != "" {
				return nil, &ProviderError{Message: tn.err}
			}
			outcome := "SUCCESS"
			if tn.sim.Status != StatusPaid {
				outcome = "FAILED"
			}
			return &InitiateResult{
				PollURL:         "TEST-" + req.Reference,
				PaynowReference: "TEST-" + req.Reference,
				Instructions:    fmt.Sprintf("Simulated %s in %s", outcome, tn.sim.After),
				Method:          method,
				Simulation:      tn.sim,
			}, nil
		}
	}

	description := req.Description
	if description == "" {
		description = "RentBot Service"
	}
	fields := []Field{
		{"id", p.cfg.IntegrationID},
		{"reference", req.Reference},
		{"amount", amount},
		{"additionalinfo", description},
		{"returnurl", p.cfg.ReturnURL},
		{"resulturl", p.cfg.ResultURL},
		{"authemail", email},
		{"phone", mobile},
		{"method", string(method)},
		{"status", "Message"},
	}
	values := make([]string, len(fields))
	form := url.Values{}
	for i, f := range fields {
		values[i] = f.Value
		form.Set(f.Key, f.Value)
	}
	form.Set("hash", Hash(values, p.cfg.IntegrationKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.InitiateURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build paynow request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("paynow request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to read paynow response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("paynow returned HTTP %d", resp.StatusCode)
	}

	reply, err := ParseFields(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse paynow response: %w", err)
	}
	if !strings.EqualFold(lookup(reply, "status"), "ok") {
		msg := lookup(reply, "error")
		if msg == "" {
			msg = "Unknown error from Paynow"
		}
		return nil, &ProviderError{Message: msg}
	}
	if err := VerifyFields(reply, p.cfg.IntegrationKey); err != nil {
		return nil, fmt.Errorf("paynow response: %w", err)
	}
	return &InitiateResult{
		PollURL:         lookup(reply, "pollurl"),
		PaynowReference: lookup(reply, "paynowreference"),
		Instructions:    lookup(reply, "instructions"),
		Method:          method,
	}, nil
}
