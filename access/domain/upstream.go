package domain

import (
	"context"
	"fmt"
)

// Operation é uma operação nomeada da API upstream.
type Operation string

const (
	OpGetPage           Operation = "getPage"
	OpGetBlocks         Operation = "getBlocks"
	OpGetUsers          Operation = "getUsers"
	OpQueryCollection   Operation = "queryCollection"
	OpGetSignedFileURLs Operation = "getSignedFileUrls"
)

var endpoints = map[Operation]string{
	OpGetPage:           "/loadPageChunk",
	OpGetBlocks:         "/syncRecordValues",
	OpGetUsers:          "/getRecordValues",
	OpQueryCollection:   "/queryCollection",
	OpGetSignedFileURLs: "/getSignedFileUrls",
}

// Endpoint é o path (relativo à base da API) chamado pela operação.
func (o Operation) Endpoint() string { return endpoints[o] }

func (o Operation) Valid() bool {
	_, ok := endpoints[o]
	return ok
}

// ParseOperation valida um nome de operação. Nome desconhecido é erro de programação.
func ParseOperation(name string) (Operation, error) {
	op := Operation(name)
	if !op.Valid() {
		return "", &Error{Kind: KindUnknownOperation, Op: name, Err: fmt.Errorf("%s is not an upstream operation", name)}
	}
	return op, nil
}

// CallKey identifica uma chamada upstream: nome da operação + argumentos canonizados.
// Chaves iguais implicam a mesma operação pedida.
type CallKey string

// OutgoingRequest é o descritor de uma chamada bruta antes do dispatch.
type OutgoingRequest struct {
	Op     Operation
	Method string
	URL    string
	Header map[string]string
	Body   []byte
}

// SetHeader grava um header inicializando o mapa quando preciso.
func (r *OutgoingRequest) SetHeader(k, v string) {
	if r.Header == nil {
		r.Header = make(map[string]string)
	}
	r.Header[k] = v
}

// RequestTransform altera o descritor antes do envio. O pipeline é uma lista ordenada delas.
type RequestTransform func(ctx context.Context, req *OutgoingRequest)
