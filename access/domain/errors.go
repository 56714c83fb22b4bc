package domain

import (
	"errors"
	"fmt"
)

// Kind classifica os erros da camada de acesso.
type Kind uint8

const (
	KindUnknown Kind = iota

	// KindUpstreamUnavailable: rede ou status não-2xx da API de conteúdo. Propaga ao chamador.
	KindUpstreamUnavailable

	// KindMappingLookupFailed: serviço de mapeamento inacessível ou payload malformado.
	// Recuperado localmente pelo resolver.
	KindMappingLookupFailed

	// KindInvalidConfiguration: tema não reconhecido, identificador obrigatório ausente.
	KindInvalidConfiguration

	// KindRateTokenUnavailable: recurso durável do token inacessível. Degrada o limiter.
	KindRateTokenUnavailable

	// KindUnknownOperation: nome de operação upstream inexistente (erro de programação).
	KindUnknownOperation
)

func (k Kind) String() string {
	switch k {
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	case KindMappingLookupFailed:
		return "mapping_lookup_failed"
	case KindInvalidConfiguration:
		return "invalid_configuration"
	case KindRateTokenUnavailable:
		return "rate_token_unavailable"
	case KindUnknownOperation:
		return "unknown_operation"
	default:
		return "unknown"
	}
}

// Sentinelas para errors.Is por tipo.
var (
	ErrUpstreamUnavailable  = &Error{Kind: KindUpstreamUnavailable}
	ErrMappingLookupFailed  = &Error{Kind: KindMappingLookupFailed}
	ErrInvalidConfiguration = &Error{Kind: KindInvalidConfiguration}
	ErrRateTokenUnavailable = &Error{Kind: KindRateTokenUnavailable}
	ErrUnknownOperation     = &Error{Kind: KindUnknownOperation}
)

// Error é o erro estruturado da camada.
//
// Endpoint e Status só fazem sentido para chamadas HTTP (Status 0 = sem resposta).
type Error struct {
	Kind     Kind
	Op       string
	Endpoint string
	Status   int
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Endpoint != "" {
		msg += " endpoint=" + e.Endpoint
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" status=%d", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is compara pelo Kind, permitindo errors.Is(err, ErrUpstreamUnavailable).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf devolve o Kind do primeiro *Error na cadeia.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
