// Package application coordena a camada de acesso ao upstream de conteúdo:
// Dispatcher (rate limit entre processos), Coalescer (dedupe de chamadas em voo),
// Resolver (identidade do tenant) e as decisões de limite da borda HTTP.
//
// Nada aqui conhece HTTP de entrada além de *http.Request no Resolver.
package application
