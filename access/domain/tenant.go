package domain

import (
	"context"
	"strings"
	"time"
)

// DefaultTenantID é o tenant usado quando nenhuma regra de resolução se aplica
// (startup do servidor, jobs em background, falha no lookup remoto).
const DefaultTenantID = "default"

// DefaultTheme é o tema da plataforma.
const DefaultTheme = "heo"

// DefaultMappingTTL é a validade de uma entrada de DomainMapping.
const DefaultMappingTTL = 60 * time.Second

var allowedThemes = []string{"heo", "gitbook", "typography"}

var reservedSubdomains = []string{"www", "api", "admin", "blog", "app"}

// AllowedThemes devolve uma cópia da allow-list de temas.
func AllowedThemes() []string {
	out := make([]string, len(allowedThemes))
	copy(out, allowedThemes)
	return out
}

// ReservedSubdomains devolve uma cópia dos subdomínios que nunca identificam um tenant.
func ReservedSubdomains() []string {
	out := make([]string, len(reservedSubdomains))
	copy(out, reservedSubdomains)
	return out
}

func IsAllowedTheme(theme string) bool {
	for _, t := range allowedThemes {
		if t == theme {
			return true
		}
	}
	return false
}

func IsReservedSubdomain(label string) bool {
	label = strings.ToLower(label)
	for _, r := range reservedSubdomains {
		if r == label {
			return true
		}
	}
	return false
}

// NormalizeTheme devolve o tema validado. Vazio vira o tema padrão sem sinalizar
// nada; um tema fora da allow-list também vira o padrão, mas com coerced=true.
func NormalizeTheme(theme string) (out string, coerced bool) {
	theme = strings.TrimSpace(theme)
	if theme == "" {
		return DefaultTheme, false
	}
	if IsAllowedTheme(theme) {
		return theme, false
	}
	return DefaultTheme, true
}

// TenantIdentity é a identidade resolvida para uma request. Imutável depois de criada.
type TenantIdentity struct {
	ID         string
	SourceHost string
	Theme      string
	IsDefault  bool
}

// DefaultIdentity é a identidade de fallback.
func DefaultIdentity(host string) TenantIdentity {
	return TenantIdentity{
		ID:         DefaultTenantID,
		SourceHost: host,
		Theme:      DefaultTheme,
		IsDefault:  true,
	}
}

// TenantConfig é o payload do serviço de mapeamento de domínios.
type TenantConfig struct {
	ID           string `json:"id,omitempty"`
	TenantID     string `json:"tenant_id,omitempty"`
	NotionPageID string `json:"notion_page_id,omitempty"`
	Theme        string `json:"theme,omitempty"`
}

// Identifier devolve o id informado pelo serviço, se houver.
func (c TenantConfig) Identifier() string {
	if c.ID != "" {
		return c.ID
	}
	return c.TenantID
}

// DomainMapping é uma entrada do cache host -> configuração do tenant.
type DomainMapping struct {
	Host      string
	Config    TenantConfig
	FetchedAt time.Time
}

// Fresh indica se a entrada ainda é válida: now - FetchedAt < ttl.
func (m DomainMapping) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(m.FetchedAt) < ttl
}

// MappingSource consulta o serviço externo de mapeamento de domínios.
type MappingSource interface {
	BySubdomain(ctx context.Context, label string) (TenantConfig, error)
	ByID(ctx context.Context, id string) (TenantConfig, error)
}

type tenantCtxKey struct{}

// WithTenant anexa a identidade resolvida ao contexto da request.
func WithTenant(ctx context.Context, id TenantIdentity) context.Context {
	return context.WithValue(ctx, tenantCtxKey{}, id)
}

// TenantFrom lê a identidade do contexto. Fora de uma request devolve a identidade padrão.
func TenantFrom(ctx context.Context) TenantIdentity {
	if ctx != nil {
		if id, ok := ctx.Value(tenantCtxKey{}).(TenantIdentity); ok {
			return id
		}
	}
	return DefaultIdentity("")
}
