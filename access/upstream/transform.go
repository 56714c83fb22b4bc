package upstream

import (
	"context"
	"net/url"
	"strings"

	"content-gateway/access/domain"
)

// DefaultAliases são as substituições de endpoint aplicadas a toda chamada.
var DefaultAliases = map[string]string{
	"/syncRecordValues": "/syncRecordValuesMain",
}

// PipelineConfig descreve o que o pipeline anexa a cada chamada.
type PipelineConfig struct {
	TokenV2     string
	ActiveUser  string
	APIKey      string
	MultiTenant bool
	Aliases     map[string]string
}

// Pipeline monta a lista ordenada de transforms:
// content-type, auth, X-Tenant-ID, X-API-Key e por último a troca de aliases.
func Pipeline(cfg PipelineConfig) []domain.RequestTransform {
	aliases := cfg.Aliases
	if aliases == nil {
		aliases = DefaultAliases
	}

	out := []domain.RequestTransform{JSONContent()}
	if cfg.TokenV2 != "" || cfg.ActiveUser != "" {
		out = append(out, Auth(cfg.TokenV2, cfg.ActiveUser))
	}
	if cfg.MultiTenant {
		out = append(out, TenantHeader())
		if cfg.APIKey != "" {
			out = append(out, APIKey(cfg.APIKey))
		}
	}
	return append(out, RewriteAliases(aliases))
}

func JSONContent() domain.RequestTransform {
	return func(_ context.Context, r *domain.OutgoingRequest) {
		r.SetHeader("Content-Type", "application/json")
		r.SetHeader("Accept", "application/json")
	}
}

// Auth anexa o cookie de sessão e o usuário ativo da API de conteúdo.
func Auth(tokenV2, activeUser string) domain.RequestTransform {
	return func(_ context.Context, r *domain.OutgoingRequest) {
		if tokenV2 != "" {
			r.SetHeader("Cookie", "token_v2="+tokenV2)
		}
		if activeUser != "" {
			r.SetHeader("x-notion-active-user", activeUser)
		}
	}
}

// TenantHeader lê a identidade do ctx; fora de request vai o tenant padrão.
func TenantHeader() domain.RequestTransform {
	return func(ctx context.Context, r *domain.OutgoingRequest) {
		r.SetHeader("X-Tenant-ID", domain.TenantFrom(ctx).ID)
	}
}

func APIKey(key string) domain.RequestTransform {
	return func(_ context.Context, r *domain.OutgoingRequest) {
		r.SetHeader("X-API-Key", key)
	}
}

// RewriteAliases troca o final do path quando ele bate exatamente com um alias.
// Independe do tenant.
func RewriteAliases(aliases map[string]string) domain.RequestTransform {
	return func(_ context.Context, r *domain.OutgoingRequest) {
		u, err := url.Parse(r.URL)
		if err != nil {
			return
		}
		for from, to := range aliases {
			if strings.HasSuffix(u.Path, from) {
				u.Path = strings.TrimSuffix(u.Path, from) + to
				r.URL = u.String()
				return
			}
		}
	}
}

// Apply roda o pipeline em ordem.
func Apply(ctx context.Context, r *domain.OutgoingRequest, pipeline []domain.RequestTransform) {
	for _, t := range pipeline {
		t(ctx, r)
	}
}
