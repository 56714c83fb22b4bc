// Package domain define contratos e tipos de domínio da camada de acesso à API de conteúdo.
//
// Aqui vivem a identidade do tenant, o mapeamento de domínios, o token de rate limit
// compartilhado entre processos, a chave de chamada upstream e os tipos de erro.
// Este pacote não depende de net/http para o servidor nem de implementações concretas.
package domain
