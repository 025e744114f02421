package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/target/renewal-risk-api/internal/domain/model"
)

// JMESPathEvaluator abstracts JMESPath operations for testability.
type JMESPathEvaluator interface {
	Validate(expr string) error
	Evaluate(expr string, data any) (any, error)
}

// jmespathLibEvaluator implements JMESPathEvaluator using go-jmespath.
type jmespathLibEvaluator struct{}

func (j jmespathLibEvaluator) Validate(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	_, err := jmespath.Compile(expr)
	return err
}

func (j jmespathLibEvaluator) Evaluate(expr string, data any) (any, error) {
	return jmespath.Search(expr, data)
}

// RMSRequestBuilderOptions configures NewRMSRequestBuilder.
type RMSRequestBuilderOptions struct {
	URL string
	// BodyExpr optionally projects the event payload into a different request body.
	BodyExpr  string
	Evaluator JMESPathEvaluator
}

// RMSRequestBuilder turns a stored delivery into an outbound RMS call.
type RMSRequestBuilder struct {
	url      string
	bodyExpr string
	jems     JMESPathEvaluator
}

// NewRMSRequestBuilder validates the endpoint and body expression up front so a bad
// configuration fails at startup instead of on every attempt.
func NewRMSRequestBuilder(opts RMSRequestBuilderOptions) (*RMSRequestBuilder, error) {
	raw := strings.TrimSpace(opts.URL)
	if raw == "" {
		return nil, errors.New("rms webhook url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse rms webhook url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("rms webhook url must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("rms webhook url has no host")
	}

	jems := opts.Evaluator
	if jems == nil {
		jems = jmespathLibEvaluator{}
	}
	expr := strings.TrimSpace(opts.BodyExpr)
	if err := jems.Validate(expr); err != nil {
		return nil, fmt.Errorf("invalid rms body expression: %w", err)
	}
	return &RMSRequestBuilder{url: u.String(), bodyExpr: expr, jems: jems}, nil
}

// URL returns the configured RMS endpoint.
func (b *RMSRequestBuilder) URL() string { return b.url }

// Build prepares the request for one attempt. The stored payload is sent verbatim unless a
// body expression is configured.
func (b *RMSRequestBuilder) Build(d *model.WebhookDelivery, now time.Time) (model.RMSRequest, error) {
	if d == nil {
		return model.RMSRequest{}, errors.New("delivery is required")
	}
	body, err := b.deriveBody(d.Payload)
	if err != nil {
		return model.RMSRequest{}, err
	}
	return model.RMSRequest{
		URL:       b.url,
		EventID:   d.EventID,
		Timestamp: now.UTC(),
		Body:      body,
	}, nil
}

func (b *RMSRequestBuilder) deriveBody(payload json.RawMessage) ([]byte, error) {
	if b.bodyExpr == "" {
		return payload, nil
	}
	var data any
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	res, err := b.jems.Evaluate(b.bodyExpr, data)
	if err != nil {
		return nil, fmt.Errorf("evaluate rms body expression: %w", err)
	}
	out, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode rms body: %w", err)
	}
	return out, nil
}
