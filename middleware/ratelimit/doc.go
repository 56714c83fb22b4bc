// Package ratelimit fornece adapters HTTP (net/http) para o limite de entrada do gateway
// interativo: token bucket por tenant e limite de requests simultâneas.
//
// As regras vivem em content-gateway/access/application (InboundService,
// ConcurrencyService) e as implementações em content-gateway/access/infra; este pacote
// só extrai a chave e traduz a decisão para status/headers.
//
// Fluxo no gateway:
//
//  1. O middleware de tenant já resolveu a identidade e a guardou no ctx
//  2. A chave é o tenant resolvido (ou o IP do cliente no tenant padrão)
//  3. Se bloqueado, responde 429 com Retry-After (rate limit) ou 503 (concorrência)
//  4. Se permitido, chama o próximo handler
//
// O modo interativo não passa pelo Dispatcher entre processos; estes limites são o
// que protege o upstream nele.
package ratelimit
