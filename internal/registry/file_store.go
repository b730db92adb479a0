package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"telegram-relay-bot/internal/domain"
)

// FileStore хранит реестр в JSON-файле.
// Запись идет во временный файл рядом с целевым и затем атомарно переименовывается,
// поэтому читатель никогда не видит частично записанный файл.
type FileStore struct {
	path string
	log  *slog.Logger
	mu   sync.Mutex
}

// NewFileStore создает новый экземпляр FileStore.
func NewFileStore(path string, log *slog.Logger) *FileStore {
	if log == nil {
		log = slog.Default()
	}
	return &FileStore{path: path, log: log}
}

// Path возвращает путь к файлу реестра.
func (s *FileStore) Path() string {
	return s.path
}

// Load читает реестр из файла. Отсутствие файла не ошибка: создается пустой реестр.
func (s *FileStore) Load(ctx context.Context) (domain.Registry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.InfoContext(ctx, "registry file not found, initializing empty registry", slog.String("path", s.path))
		reg := domain.NewRegistry()
		if err := s.write(reg); err != nil {
			return domain.Registry{}, err
		}
		return reg, nil
	}
	if err != nil {
		return domain.Registry{}, fmt.Errorf("failed to read registry file %s: %w", s.path, err)
	}

	reg, err := decode(data)
	if err != nil {
		return domain.Registry{}, fmt.Errorf("registry file %s: %w", s.path, err)
	}
	return reg, nil
}

// Save атомарно заменяет файл реестра.
func (s *FileStore) Save(_ context.Context, reg domain.Registry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(reg)
}

func (s *FileStore) write(reg domain.Registry) error {
	data, err := encode(reg)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	// После успешного rename файла уже нет, Remove вернет ошибку, которую игнорируем.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace registry file %s: %w", s.path, err)
	}
	return nil
}
