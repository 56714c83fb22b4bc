package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"content-gateway/access/domain"
)

var lockSeq atomic.Uint64

// FileTokenStore guarda o RateToken num arquivo compartilhado por todos os processos
// do mesmo host/build.
//
// A seção crítica é um lock file irmão (<path>.lock) criado com O_EXCL. Um lock cujo
// mtime passou de staleAfter é considerado abandonado (processo morto) e recuperado.
// O token é gravado via arquivo temporário + rename, então leitores nunca veem escrita parcial.
type FileTokenStore struct {
	path           string
	lockPath       string
	staleAfter     time.Duration
	acquireTimeout time.Duration
	pollEvery      time.Duration

	// beforeReclaim roda entre julgar o lock velho e tomá-lo (testes de corrida).
	beforeReclaim func()
}

type FileTokenOption func(*FileTokenStore)

func WithStaleAfter(d time.Duration) FileTokenOption {
	return func(s *FileTokenStore) { s.staleAfter = d }
}

func WithAcquireTimeout(d time.Duration) FileTokenOption {
	return func(s *FileTokenStore) { s.acquireTimeout = d }
}

func WithPollEvery(d time.Duration) FileTokenOption {
	return func(s *FileTokenStore) { s.pollEvery = d }
}

func NewFileTokenStore(path string, opts ...FileTokenOption) *FileTokenStore {
	s := &FileTokenStore{
		path:           path,
		lockPath:       path + ".lock",
		staleAfter:     10 * time.Second,
		acquireTimeout: 2 * time.Second,
		pollEvery:      5 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FileTokenStore) Path() string { return s.path }

// Advance implementa domain.TokenStore.
func (s *FileTokenStore) Advance(ctx context.Context, minInterval time.Duration) (time.Duration, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return 0, unavailable("token.lock", err)
	}
	defer unlock()

	tok, err := s.read()
	if err != nil {
		return 0, unavailable("token.read", err)
	}

	now := time.Now()
	if wait, ok := decide(tok.Last(), now, minInterval); !ok {
		return wait, nil
	}
	if err := s.write(domain.RateToken{LastDispatchMillis: now.UnixMilli()}); err != nil {
		return 0, unavailable("token.write", err)
	}
	return 0, nil
}

// Load implementa domain.TokenStore. Leitura sem lock: o rename garante consistência.
func (s *FileTokenStore) Load(context.Context) (domain.RateToken, error) {
	tok, err := s.read()
	if err != nil {
		return domain.RateToken{}, unavailable("token.read", err)
	}
	return tok, nil
}

func (s *FileTokenStore) read() (domain.RateToken, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.RateToken{}, nil
	}
	if err != nil {
		return domain.RateToken{}, err
	}
	var tok domain.RateToken
	if len(raw) == 0 {
		return tok, nil
	}
	if err := json.Unmarshal(raw, &tok); err != nil {
		// token corrompido é consultivo: recomeça do zero
		return domain.RateToken{}, nil
	}
	return tok, nil
}

func (s *FileTokenStore) write(tok domain.RateToken) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp-" + strconv.Itoa(os.Getpid())
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// lock adquire o lock file. Devolve a função de release.
func (s *FileTokenStore) lock(ctx context.Context) (func(), error) {
	nonce := fmt.Sprintf("%d-%d-%d", os.Getpid(), time.Now().UnixNano(), lockSeq.Add(1))
	deadline := time.Now().Add(s.acquireTimeout)

	for {
		f, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, werr := f.WriteString(nonce)
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(s.lockPath)
				return nil, errors.Join(werr, cerr)
			}
			return func() { s.unlock(nonce) }, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, err
		}

		if s.reclaimStale() {
			continue
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("lock %s held for more than %s", s.lockPath, s.acquireTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.pollEvery):
		}
	}
}

// reclaimStale remove um lock abandonado. O rename para um nome único é atômico, então
// só um processo consegue tomar o lock velho. Antes do rename o arquivo é conferido de
// novo (os.SameFile) contra o que foi julgado velho; se mesmo assim o arquivo tomado
// não for aquele (outro processo recriou no meio tempo), ele é devolvido ao lugar.
func (s *FileTokenStore) reclaimStale() bool {
	info, err := os.Stat(s.lockPath)
	if err != nil {
		return errors.Is(err, fs.ErrNotExist)
	}
	if time.Since(info.ModTime()) <= s.staleAfter {
		return false
	}
	if s.beforeReclaim != nil {
		s.beforeReclaim()
	}

	again, err := os.Stat(s.lockPath)
	if err != nil {
		return errors.Is(err, fs.ErrNotExist)
	}
	if !os.SameFile(info, again) {
		return false
	}

	grabbed := fmt.Sprintf("%s.stale-%d-%d", s.lockPath, os.Getpid(), lockSeq.Add(1))
	if err := os.Rename(s.lockPath, grabbed); err != nil {
		return errors.Is(err, fs.ErrNotExist)
	}
	if taken, err := os.Stat(grabbed); err == nil && !os.SameFile(info, taken) {
		_ = os.Link(grabbed, s.lockPath)
	}
	_ = os.Remove(grabbed)
	return true
}

func (s *FileTokenStore) unlock(nonce string) {
	raw, err := os.ReadFile(s.lockPath)
	if err != nil || string(raw) != nonce {
		// lock já recuperado por outro processo: não é mais nosso
		return
	}
	_ = os.Remove(s.lockPath)
}

// EnsureDir cria o diretório do token quando não existe.
func (s *FileTokenStore) EnsureDir() error {
	dir := filepath.Dir(s.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
