package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"content-gateway/access/domain"
)

const maxMappingBody = 1 << 20

// HTTPMappingSource consulta o serviço de mapeamento de domínios:
//
//	GET <base>/api/tenants/by-subdomain/<label>
//	GET <base>/api/tenants/<id>
//
// O corpo precisa ser um objeto JSON com pelo menos notion_page_id ou theme;
// qualquer outra forma é tratada como malformada.
type HTTPMappingSource struct {
	base   string
	apiKey string
	client *http.Client
}

type MappingOption func(*HTTPMappingSource)

func WithMappingAPIKey(key string) MappingOption {
	return func(s *HTTPMappingSource) { s.apiKey = key }
}

func WithMappingHTTPClient(c *http.Client) MappingOption {
	return func(s *HTTPMappingSource) { s.client = c }
}

func NewHTTPMappingSource(base string, opts ...MappingOption) *HTTPMappingSource {
	s := &HTTPMappingSource{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *HTTPMappingSource) BySubdomain(ctx context.Context, label string) (domain.TenantConfig, error) {
	return s.get(ctx, "/api/tenants/by-subdomain/"+url.PathEscape(label))
}

func (s *HTTPMappingSource) ByID(ctx context.Context, id string) (domain.TenantConfig, error) {
	return s.get(ctx, "/api/tenants/"+url.PathEscape(id))
}

func (s *HTTPMappingSource) get(ctx context.Context, path string) (domain.TenantConfig, error) {
	fail := func(status int, err error) (domain.TenantConfig, error) {
		return domain.TenantConfig{}, &domain.Error{
			Kind:     domain.KindMappingLookupFailed,
			Op:       "mapping.lookup",
			Endpoint: path,
			Status:   status,
			Err:      err,
		}
	}

	if s.base == "" {
		return fail(0, errors.New("mapping service base url not configured"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+path, nil)
	if err != nil {
		return fail(0, err)
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fail(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxMappingBody))
		return fail(resp.StatusCode, fmt.Errorf("unexpected status %s", resp.Status))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxMappingBody))
	if err != nil {
		return fail(resp.StatusCode, err)
	}
	cfg, err := decodeTenantConfig(raw)
	if err != nil {
		return fail(resp.StatusCode, err)
	}
	return cfg, nil
}

func decodeTenantConfig(raw []byte) (domain.TenantConfig, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return domain.TenantConfig{}, errors.New("malformed payload: expected a JSON object")
	}
	_, hasPage := fields["notion_page_id"]
	_, hasTheme := fields["theme"]
	if !hasPage && !hasTheme {
		return domain.TenantConfig{}, errors.New("malformed payload: neither notion_page_id nor theme present")
	}

	var cfg domain.TenantConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return domain.TenantConfig{}, fmt.Errorf("malformed payload: %w", err)
	}
	return cfg, nil
}
