package application

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"content-gateway/access/domain"
)

// Invoker executa a chamada bruta de uma operação.
type Invoker func(ctx context.Context, op domain.Operation, args []any) (any, error)

type inflight struct {
	done    chan struct{}
	val     any
	err     error
	joiners int
}

// Coalescer junta chamadas idênticas concorrentes numa única ida ao upstream.
//
// No máximo uma entrada em voo por chave. A entrada sai do mapa exatamente uma vez,
// depois de liquidada (sucesso ou erro) e antes de liberar quem espera; uma falha
// nunca fica em cache e a próxima chamada tenta de novo.
type Coalescer struct {
	mu       sync.Mutex
	inflight map[domain.CallKey]*inflight

	invoke Invoker
	sched  Scheduler
	scope  func(ctx context.Context) string
	stats  domain.StatsStore
}

type CoalescerOption func(*Coalescer)

// WithScheduler faz cada chamada nova passar pelo rate limiter antes de executar.
func WithScheduler(s Scheduler) CoalescerOption {
	return func(c *Coalescer) {
		if d, ok := s.(*Dispatcher); ok && d == nil {
			return
		}
		c.sched = s
	}
}

// WithScope prefixa a chave com um escopo derivado do ctx (ex: tenant), para que
// chamadas com os mesmos argumentos mas headers diferentes não se misturem.
func WithScope(fn func(ctx context.Context) string) CoalescerOption {
	return func(c *Coalescer) { c.scope = fn }
}

func WithCoalescerStats(s domain.StatsStore) CoalescerOption {
	return func(c *Coalescer) { c.stats = s }
}

func NewCoalescer(invoke Invoker, opts ...CoalescerOption) *Coalescer {
	c := &Coalescer{
		inflight: make(map[domain.CallKey]*inflight),
		invoke:   invoke,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call executa op(args...) uma vez por chave em voo.
func (c *Coalescer) Call(ctx context.Context, op domain.Operation, args ...any) (any, error) {
	if c.invoke == nil {
		return nil, fmt.Errorf("coalescer for %s has no invoker", op)
	}
	key, err := CanonicalKey(string(op), args...)
	if err != nil {
		return nil, err
	}
	if c.scope != nil {
		if s := c.scope(ctx); s != "" {
			key = domain.CallKey(s + "|" + string(key))
		}
	}
	return c.Do(ctx, key, string(op), func(ctx context.Context) (any, error) {
		return c.invoke(ctx, op, args)
	})
}

// Do é a forma de baixo nível: junta por chave já calculada.
//
// O ctx do chamador só controla quanto ele espera; a chamada compartilhada roda com
// um ctx desacoplado do cancelamento (mantém os valores, ex: tenant), porque outros
// podem estar esperando por ela.
func (c *Coalescer) Do(ctx context.Context, key domain.CallKey, op string, task Task) (any, error) {
	c.mu.Lock()
	if cl, ok := c.inflight[key]; ok {
		cl.joiners++
		c.mu.Unlock()
		c.record(ctx, op)
		return wait(ctx, cl)
	}
	cl := &inflight{done: make(chan struct{})}
	c.inflight[key] = cl
	c.mu.Unlock()

	go c.execute(context.WithoutCancel(ctx), key, task, cl)
	return wait(ctx, cl)
}

// InFlight devolve quantas chaves estão em voo.
func (c *Coalescer) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

func (c *Coalescer) execute(ctx context.Context, key domain.CallKey, task Task, cl *inflight) {
	var (
		val any
		err error
	)
	defer func() {
		if r := recover(); r != nil {
			val, err = nil, fmt.Errorf("call %s panicked: %v", key, r)
		}
		c.mu.Lock()
		delete(c.inflight, key)
		c.mu.Unlock()

		cl.val, cl.err = val, err
		close(cl.done)
	}()

	if c.sched != nil {
		res := <-c.sched.Enqueue(ctx, string(key), task)
		val, err = res.Value, res.Err
		return
	}
	val, err = task(ctx)
}

func wait(ctx context.Context, cl *inflight) (any, error) {
	select {
	case <-cl.done:
		return cl.val, cl.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Coalescer) record(ctx context.Context, op string) {
	if c.stats == nil {
		return
	}
	_ = c.stats.Record(ctx, domain.StatsEvent{
		Kind:   domain.StatsCoalesced,
		Tenant: domain.TenantFrom(ctx).ID,
		Op:     op,
		At:     time.Now(),
	})
}

// CanonicalKey monta op + "-" + JSON canônico dos argumentos.
//
// Os argumentos passam por um round-trip JSON (números preservados com UseNumber) e
// voltam a ser serializados; como encoding/json ordena chaves de mapas, a ordem dos
// campos nunca gera chaves diferentes para a mesma chamada.
func CanonicalKey(op string, args ...any) (domain.CallKey, error) {
	if args == nil {
		args = []any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("canonical key for %s: %w", op, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return "", fmt.Errorf("canonical key for %s: %w", op, err)
	}
	canon, err := json.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("canonical key for %s: %w", op, err)
	}
	return domain.CallKey(op + "-" + string(canon)), nil
}
