package notify

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/coindraw/internal/domain/lottery"
	"github.com/riskibarqy/coindraw/internal/platform/logging"
	"github.com/riskibarqy/coindraw/internal/platform/resilience"
	"github.com/valyala/bytebufferpool"
	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type WebhookPublisherConfig struct {
	URL     string
	Timeout time.Duration
	Retries int
	Circuit resilience.CircuitBreakerConfig
}

// WebhookPublisher delivers completion events to a configured HTTP
// endpoint. Delivery is best effort: the lottery is already sealed when
// this runs, so a lost webhook never affects stored state. The circuit
// breaker keeps a dead endpoint from stalling every finalize.
type WebhookPublisher struct {
	client     *fasthttp.Client
	url        string
	retries    int
	breaker    *resilience.CircuitBreaker
	useBreaker bool
	logger     *logging.Logger
}

type completionEvent struct {
	Event      string            `json:"event"`
	LotteryID  string            `json:"lotteryId"`
	TotalCoins int               `json:"totalCoins"`
	Results    []completionShare `json:"results"`
	DrawTime   time.Time         `json:"drawTime"`
	SealedAt   time.Time         `json:"sealedAt"`
}

type completionShare struct {
	ParticipantName string    `json:"participantName"`
	Coins           int       `json:"coins"`
	Origin          string    `json:"origin"`
	DrawnAt         time.Time `json:"drawnAt"`
}

func NewWebhookPublisher(cfg WebhookPublisherConfig, logger *logging.Logger) (*WebhookPublisher, error) {
	endpoint, err := validateHTTPURL(cfg.URL)
	if err != nil {
		return nil, crerr.Wrap(err, "invalid webhook url")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}

	circuit := resilience.NormalizeCircuitBreakerConfig(cfg.Circuit)

	return &WebhookPublisher{
		client: &fasthttp.Client{
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		url:        endpoint,
		retries:    cfg.Retries,
		breaker:    resilience.NewCircuitBreaker(circuit.FailureThreshold, circuit.OpenTimeout, circuit.HalfOpenMaxReq),
		useBreaker: circuit.Enabled,
		logger:     logger,
	}, nil
}

func (p *WebhookPublisher) PublishCompleted(ctx context.Context, activity lottery.Activity) error {
	if p.useBreaker {
		if err := p.breaker.Allow(); err != nil {
			return crerr.Wrapf(err, "dropping completion for lottery %s", activity.ID)
		}
	}

	shares := make([]completionShare, 0, len(activity.Results))
	for _, r := range activity.Results {
		shares = append(shares, completionShare{
			ParticipantName: r.ParticipantName,
			Coins:           r.Coins,
			Origin:          string(r.Origin),
			DrawnAt:         r.DrawnAt,
		})
	}

	body, err := sonic.Marshal(completionEvent{
		Event:      "lottery.completed",
		LotteryID:  activity.ID,
		TotalCoins: activity.Config.TotalCoins,
		Results:    shares,
		DrawTime:   activity.Config.DrawTime,
		SealedAt:   activity.UpdatedAt,
	})
	if err != nil {
		return crerr.Wrap(err, "marshal completion event")
	}

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(
			attribute.String("webhook.url", p.url),
			attribute.String("webhook.lottery_id", activity.ID),
			attribute.Int("webhook.result_count", len(shares)),
		)
	}

	err = p.deliver(body)
	if err != nil {
		if p.useBreaker {
			p.breaker.RecordFailure()
		}
		return crerr.Wrapf(err, "publish completion for lottery %s", activity.ID)
	}
	if p.useBreaker {
		p.breaker.RecordSuccess()
	}

	p.logger.InfoContext(ctx, "completion webhook delivered",
		"lottery_id", activity.ID,
		"result_count", len(shares),
	)
	return nil
}

func (p *WebhookPublisher) deliver(body []byte) error {
	var lastErr error
	for attempt := 0; attempt <= p.retries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
		}
		if lastErr = p.post(body); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (p *WebhookPublisher) post(body []byte) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(p.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := p.client.Do(req, resp); err != nil {
		return crerr.Wrap(err, "post webhook")
	}
	if resp.StatusCode()/100 != 2 {
		preview := bytebufferpool.Get()
		defer bytebufferpool.Put(preview)
		raw := resp.Body()
		if len(raw) > 4096 {
			raw = raw[:4096]
		}
		_, _ = preview.Write(raw)
		return crerr.Newf("webhook status=%d body=%s", resp.StatusCode(), strings.TrimSpace(preview.String()))
	}

	return nil
}

func validateHTTPURL(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "", crerr.New("value is empty")
	}

	parsed, err := url.Parse(candidate)
	if err != nil {
		return "", crerr.Wrapf(err, "parse %q", candidate)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", crerr.Newf("%q uses unsupported scheme=%q; expected http or https", candidate, parsed.Scheme)
	}
	if strings.TrimSpace(parsed.Host) == "" {
		return "", crerr.Newf("%q has empty host", candidate)
	}

	return candidate, nil
}
