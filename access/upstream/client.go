// Package upstream é o cliente da API de conteúdo: cada operação passa pelo Coalescer
// (e, em modo bulk, pelo Dispatcher) antes de virar um POST com corpo JSON.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"content-gateway/access/application"
	"content-gateway/access/domain"
	"content-gateway/platform/logger"
)

// DefaultBaseURL é a API pública, usada quando nenhuma base é informada.
const DefaultBaseURL = "https://www.notion.so/api/v3"

const (
	maxResponseBody = 32 << 20
	maxErrorSnippet = 512
)

// SignedURLRequest pede a URL assinada de um arquivo anexado a um bloco.
type SignedURLRequest struct {
	BlockID string `json:"blockId"`
	URL     string `json:"url"`
}

// Client executa as operações nomeadas da API de conteúdo.
//
// O json.RawMessage devolvido é compartilhado por todos os chamadores que se juntaram
// à mesma chamada em voo: trate como somente leitura.
type Client struct {
	base        string
	http        *http.Client
	timeout     time.Duration
	pipeline    []domain.RequestTransform
	sched       application.Scheduler
	multiTenant bool
	stats       domain.StatsStore
	log         *logger.Logger

	flight *application.Coalescer
}

type Option func(*Client)

func WithBaseURL(base string) Option {
	return func(c *Client) { c.base = strings.TrimRight(base, "/") }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTimeout limita cada chamada bruta. Timeout conta como falha e libera a chave.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithPipeline(p []domain.RequestTransform) Option {
	return func(c *Client) { c.pipeline = p }
}

// WithScheduler passa toda chamada nova pelo rate limiter (modo bulk).
func WithScheduler(s application.Scheduler) Option {
	return func(c *Client) { c.sched = s }
}

// WithMultiTenant separa o dedupe por tenant, já que o header X-Tenant-ID muda a resposta.
func WithMultiTenant(on bool) Option {
	return func(c *Client) { c.multiTenant = on }
}

func WithStats(s domain.StatsStore) Option {
	return func(c *Client) { c.stats = s }
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

func New(opts ...Option) *Client {
	c := &Client{
		base:    DefaultBaseURL,
		timeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.base == "" {
		c.base = DefaultBaseURL
	}
	if c.http == nil {
		c.http = &http.Client{Transport: newTransport()}
	}
	if c.pipeline == nil {
		c.pipeline = Pipeline(PipelineConfig{MultiTenant: c.multiTenant})
	}
	if c.log == nil {
		c.log = logger.Named("upstream")
	}

	copts := []application.CoalescerOption{
		application.WithScheduler(c.sched),
		application.WithCoalescerStats(c.stats),
	}
	if c.multiTenant {
		copts = append(copts, application.WithScope(func(ctx context.Context) string {
			return domain.TenantFrom(ctx).ID
		}))
	}
	c.flight = application.NewCoalescer(c.invoke, copts...)
	return c
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

func (c *Client) BaseURL() string { return c.base }

// InFlight devolve quantas chamadas distintas estão em voo.
func (c *Client) InFlight() int { return c.flight.InFlight() }

// GetPage carrega o primeiro chunk de uma página.
func (c *Client) GetPage(ctx context.Context, pageID string) (json.RawMessage, error) {
	return c.do(ctx, domain.OpGetPage, pageID)
}

// GetBlocks busca blocos por id (endpoint syncRecordValues).
func (c *Client) GetBlocks(ctx context.Context, blockIDs []string) (json.RawMessage, error) {
	return c.do(ctx, domain.OpGetBlocks, blockIDs)
}

func (c *Client) GetUsers(ctx context.Context, userIDs []string) (json.RawMessage, error) {
	return c.do(ctx, domain.OpGetUsers, userIDs)
}

func (c *Client) QueryCollection(ctx context.Context, collectionID, viewID string) (json.RawMessage, error) {
	return c.do(ctx, domain.OpQueryCollection, collectionID, viewID)
}

func (c *Client) GetSignedFileURLs(ctx context.Context, reqs []SignedURLRequest) (json.RawMessage, error) {
	return c.do(ctx, domain.OpGetSignedFileURLs, reqs)
}

// Call executa uma operação pelo nome. Nome desconhecido é erro de programação:
// devolve KindUnknownOperation sem tocar a rede.
func (c *Client) Call(ctx context.Context, name string, args ...any) (json.RawMessage, error) {
	op, err := domain.ParseOperation(name)
	if err != nil {
		c.log.Error().Err(err).Str("op", name).Msg("unknown upstream operation")
		return nil, err
	}
	return c.do(ctx, op, args...)
}

func (c *Client) do(ctx context.Context, op domain.Operation, args ...any) (json.RawMessage, error) {
	v, err := c.flight.Call(ctx, op, args...)
	if err != nil {
		return nil, err
	}
	raw, _ := v.(json.RawMessage)
	return raw, nil
}

// invoke é a chamada bruta: uma ida à rede por chave em voo.
func (c *Client) invoke(ctx context.Context, op domain.Operation, args []any) (any, error) {
	payload, err := buildBody(op, args)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s body: %w", op, err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	out := &domain.OutgoingRequest{
		Op:     op,
		Method: http.MethodPost,
		URL:    c.base + op.Endpoint(),
		Body:   body,
	}
	Apply(ctx, out, c.pipeline)
	endpoint := strings.TrimPrefix(out.URL, c.base)

	c.record(ctx, domain.StatsUpstreamCall, op)
	raw, status, err := c.send(ctx, out)
	if err != nil {
		c.record(ctx, domain.StatsUpstreamError, op)
		return nil, &domain.Error{
			Kind:     domain.KindUpstreamUnavailable,
			Op:       string(op),
			Endpoint: endpoint,
			Status:   status,
			Err:      err,
		}
	}
	return json.RawMessage(raw), nil
}

func (c *Client) send(ctx context.Context, out *domain.OutgoingRequest) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, out.Method, out.URL, bytes.NewReader(out.Body))
	if err != nil {
		return nil, 0, err
	}
	for k, v := range out.Header {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, fmt.Errorf("unexpected status %s: %s", resp.Status, snippet(raw))
	}
	return raw, resp.StatusCode, nil
}

func (c *Client) record(ctx context.Context, kind domain.StatsKind, op domain.Operation) {
	if c.stats == nil {
		return
	}
	_ = c.stats.Record(ctx, domain.StatsEvent{
		Kind:   kind,
		Tenant: domain.TenantFrom(ctx).ID,
		Op:     string(op),
		At:     time.Now(),
	})
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > maxErrorSnippet {
		s = s[:maxErrorSnippet] + "..."
	}
	return s
}
