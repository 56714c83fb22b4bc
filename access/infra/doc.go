// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - FileTokenStore / RedisTokenStore / SQLiteTokenStore: token de rate limit durável
//   - LocalTokenStore: fallback só do processo (golang.org/x/time/rate)
//   - HTTPMappingSource + MappingCache: lookup de domínios com TTL
//   - Store: token bucket por tenant para a borda HTTP
//   - Stats: memória, Redis e Prometheus
package infra
