package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"content-gateway/access/domain"
	"content-gateway/platform/logger"
)

// ErrDispatcherClosed é devolvido às tarefas ainda na fila quando o Dispatcher fecha.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Task é uma chamada upstream adiada até o Dispatcher liberar.
type Task func(ctx context.Context) (any, error)

// Result é o resultado liquidado de uma Task.
type Result struct {
	Value any
	Err   error
}

// Scheduler é o que o Coalescer precisa de um rate limiter.
type Scheduler interface {
	Enqueue(ctx context.Context, key string, task Task) <-chan Result
}

type job struct {
	ctx    context.Context
	key    string
	task   Task
	result chan Result
}

// Dispatcher serializa chamadas upstream entre goroutines do processo e entre processos.
//
// Cada dispatch só começa depois de minInterval desde o último dispatch gravado no
// TokenStore durável, que é compartilhado pelos processos cooperantes. Dentro do
// processo a fila é FIFO; entre processos não há justiça além do intervalo mínimo.
//
// Se o TokenStore falha, o Dispatcher cai para o store local (fallback) e tenta o
// durável de novo a cada retryDurable. Nunca bloqueia o chamador por causa do store.
//
// Desligado (modo interativo), Enqueue executa a tarefa direto.
type Dispatcher struct {
	store        domain.TokenStore
	fallback     domain.TokenStore
	minInterval  time.Duration
	enabled      bool
	retryDurable time.Duration
	stats        domain.StatsStore
	log          *logger.Logger

	mu      sync.Mutex
	queue   []*job
	wake    chan struct{}
	done    chan struct{}
	started bool
	closed  bool

	degraded   atomic.Bool
	degradedAt time.Time
	// último dispatch liberado por este processo (só o loop escreve)
	lastDispatch time.Time
}

type DispatcherOption func(*Dispatcher)

func WithMinInterval(d time.Duration) DispatcherOption {
	return func(x *Dispatcher) { x.minInterval = d }
}

// WithEnabled liga o Dispatcher (modo bulk/offline). Desligado é passthrough.
func WithEnabled(enabled bool) DispatcherOption {
	return func(x *Dispatcher) { x.enabled = enabled }
}

// WithFallback define o store usado enquanto o durável estiver indisponível.
func WithFallback(store domain.TokenStore) DispatcherOption {
	return func(x *Dispatcher) { x.fallback = store }
}

// WithRetryDurable define de quanto em quanto tempo o store durável é testado de novo
// durante uma degradação.
func WithRetryDurable(d time.Duration) DispatcherOption {
	return func(x *Dispatcher) { x.retryDurable = d }
}

func WithDispatchStats(s domain.StatsStore) DispatcherOption {
	return func(x *Dispatcher) { x.stats = s }
}

func WithDispatchLogger(l *logger.Logger) DispatcherOption {
	return func(x *Dispatcher) { x.log = l }
}

// NewDispatcher cria o Dispatcher. fallback é obrigatório quando store pode falhar;
// sem ele, uma falha do store libera o dispatch sem espera (e loga).
func NewDispatcher(store domain.TokenStore, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:        store,
		minInterval:  200 * time.Millisecond,
		enabled:      true,
		retryDurable: 30 * time.Second,
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = logger.Named("dispatcher")
	}
	return d
}

func (d *Dispatcher) Enabled() bool              { return d.enabled }
func (d *Dispatcher) MinInterval() time.Duration { return d.minInterval }

// Degraded indica se o Dispatcher está usando só o limite local.
func (d *Dispatcher) Degraded() bool { return d.degraded.Load() }

// Pending devolve quantas tarefas aguardam na fila.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Enqueue agenda a tarefa e devolve o canal (buffer 1) que recebe o resultado.
// Falha da tarefa vai só para este chamador; a fila segue.
func (d *Dispatcher) Enqueue(ctx context.Context, key string, task Task) <-chan Result {
	j := &job{ctx: ctx, key: key, task: task, result: make(chan Result, 1)}

	if !d.enabled || d.store == nil {
		go d.run(j)
		return j.result
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		j.result <- Result{Err: ErrDispatcherClosed}
		return j.result
	}
	d.queue = append(d.queue, j)
	if !d.started {
		d.started = true
		go d.loop()
	}
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return j.result
}

// Do é Enqueue + espera. Desistir (ctx) não cancela a tarefa já despachada.
func (d *Dispatcher) Do(ctx context.Context, key string, task Task) (any, error) {
	select {
	case res := <-d.Enqueue(ctx, key, task):
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close para o loop; tarefas ainda na fila recebem ErrDispatcherClosed.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	pending := d.queue
	d.queue = nil
	close(d.done)
	d.mu.Unlock()

	for _, j := range pending {
		j.result <- Result{Err: ErrDispatcherClosed}
	}
}

func (d *Dispatcher) next() *job {
	for {
		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return nil
		}
		if len(d.queue) > 0 {
			j := d.queue[0]
			d.queue[0] = nil
			d.queue = d.queue[1:]
			d.mu.Unlock()
			return j
		}
		d.mu.Unlock()

		select {
		case <-d.wake:
		case <-d.done:
			return nil
		}
	}
}

func (d *Dispatcher) loop() {
	for {
		j := d.next()
		if j == nil {
			return
		}
		if err := j.ctx.Err(); err != nil {
			j.result <- Result{Err: err}
			continue
		}
		if err := d.waitTurn(j); err != nil {
			j.result <- Result{Err: err}
			continue
		}
		d.record(j.ctx, domain.StatsEvent{Kind: domain.StatsDispatch})
		go d.run(j)
	}
}

// waitTurn suspende o loop até o token liberar o dispatch (e grava o novo timestamp).
func (d *Dispatcher) waitTurn(j *job) error {
	for {
		wait := d.advance()
		if wait <= 0 {
			return nil
		}
		d.record(j.ctx, domain.StatsEvent{Kind: domain.StatsWait, Wait: wait})

		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-j.ctx.Done():
			t.Stop()
			return j.ctx.Err()
		case <-d.done:
			t.Stop()
			return ErrDispatcherClosed
		}
	}
}

func (d *Dispatcher) advance() time.Duration {
	// chamadas ao store não dependem do ctx do chamador: o timestamp é da frota
	ctx := context.Background()

	var wait time.Duration
	if d.degraded.Load() && time.Since(d.degradedAt) < d.retryDurable {
		wait = d.advanceFallback(ctx)
	} else {
		wait = d.advanceDurable(ctx)
	}
	if wait <= 0 {
		d.lastDispatch = time.Now()
	}
	return wait
}

func (d *Dispatcher) advanceDurable(ctx context.Context) time.Duration {
	wait, err := d.store.Advance(ctx, d.minInterval)
	if err != nil {
		d.degradedAt = time.Now()
		if !d.degraded.Swap(true) {
			d.log.Warn().Err(err).Dur("min_interval", d.minInterval).
				Msg("rate token unavailable, degrading to process-local rate limiting")
			d.record(ctx, domain.StatsEvent{Kind: domain.StatsDegraded})
		}
		return d.advanceFallback(ctx)
	}
	if d.degraded.Swap(false) {
		d.log.Info().Msg("rate token available again, cross-process rate limiting restored")
	}
	return wait
}

// advanceFallback respeita também o último dispatch local, para que a troca do store
// durável pelo fallback não libere um dispatch antes de minInterval.
func (d *Dispatcher) advanceFallback(ctx context.Context) time.Duration {
	if floor := time.Until(d.lastDispatch.Add(d.minInterval)); floor > 0 {
		return floor
	}
	if d.fallback == nil {
		return 0
	}
	wait, err := d.fallback.Advance(ctx, d.minInterval)
	if err != nil {
		d.log.Error().Err(err).Msg("fallback rate token failed, dispatching without wait")
		return 0
	}
	return wait
}

func (d *Dispatcher) run(j *job) {
	defer func() {
		if r := recover(); r != nil {
			j.result <- Result{Err: fmt.Errorf("task %s panicked: %v", j.key, r)}
		}
	}()
	v, err := j.task(j.ctx)
	j.result <- Result{Value: v, Err: err}
}

func (d *Dispatcher) record(ctx context.Context, ev domain.StatsEvent) {
	if d.stats == nil {
		return
	}
	ev.Tenant = domain.TenantFrom(ctx).ID
	ev.At = time.Now()
	_ = d.stats.Record(ctx, ev)
}
