// Package logger encapsula o zerolog com defaults do gateway e logger por request.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Options configura o logger raiz.
type Options struct {
	Level      string
	Format     string // "console" ou "json"
	Service    string
	Writer     io.Writer
	WithCaller bool
}

// FromEnv lê LOG_LEVEL, LOG_FORMAT, LOG_SERVICE e LOG_CALLER.
func FromEnv() Options {
	return Options{
		Level:      strings.ToLower(getenvDefault("LOG_LEVEL", "info")),
		Format:     strings.ToLower(getenvDefault("LOG_FORMAT", "console")),
		Service:    getenvDefault("LOG_SERVICE", "content-gateway"),
		WithCaller: getenvDefault("LOG_CALLER", "false") == "true",
	}
}

type Logger = zerolog.Logger

var (
	once sync.Once
	root atomic.Pointer[zerolog.Logger]
)

// Init configura o logger raiz. Só a primeira chamada tem efeito.
func Init(opt Options) {
	once.Do(func() {
		root.Store(build(opt))
	})
}

// Get devolve o logger raiz do processo, inicializando a partir do ambiente se preciso.
func Get() *Logger {
	if l := root.Load(); l != nil {
		return l
	}
	Init(FromEnv())
	return root.Load()
}

// New constrói um logger isolado (útil em testes, sem tocar no raiz).
func New(opt Options) *Logger { return build(opt) }

// Nop é um logger que descarta tudo.
func Nop() *Logger {
	l := zerolog.Nop()
	return &l
}

func build(opt Options) *Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w io.Writer = os.Stdout
	if opt.Writer != nil {
		w = opt.Writer
	}
	if opt.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: opt.Writer != nil}
	}

	ctx := zerolog.New(w).Level(parseLevel(opt.Level)).With().Timestamp()
	if opt.Service != "" {
		ctx = ctx.Str("service", opt.Service)
	}
	log := ctx.Logger()
	if opt.WithCaller {
		log = log.With().Caller().Logger()
	}
	return &log
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

type ctxKey struct{ name string }

var (
	keyRequestID = ctxKey{"req_id"}
	keyTenantID  = ctxKey{"tenant_id"}
)

// WithRequestID anota o ctx com o id da request.
func WithRequestID(ctx context.Context, reqID string) context.Context {
	if reqID == "" {
		return ctx
	}
	return context.WithValue(ctx, keyRequestID, reqID)
}

// WithTenantID anota o ctx com o tenant resolvido.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	if tenantID == "" {
		return ctx
	}
	return context.WithValue(ctx, keyTenantID, tenantID)
}

// RequestID lê o id da request do ctx.
func RequestID(ctx context.Context) string {
	s, _ := ctx.Value(keyRequestID).(string)
	return s
}

// C devolve um logger filho com request_id e tenant_id do ctx.
func C(ctx context.Context) *Logger {
	l := Get()
	if ctx == nil {
		return l
	}
	b := l.With()
	if s, ok := ctx.Value(keyRequestID).(string); ok && s != "" {
		b = b.Str("request_id", s)
	}
	if s, ok := ctx.Value(keyTenantID).(string); ok && s != "" {
		b = b.Str("tenant_id", s)
	}
	ll := b.Logger()
	return &ll
}

// Named devolve um logger filho com o campo component.
func Named(component string) *Logger {
	if component == "" {
		return Get()
	}
	ll := Get().With().Str("component", component).Logger()
	return &ll
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
