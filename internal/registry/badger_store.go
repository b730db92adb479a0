package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"telegram-relay-bot/internal/domain"
)

// registryKey — единственный ключ, под которым лежит весь документ реестра.
var registryKey = []byte("registry:v1")

// BadgerStore хранит реестр в BadgerDB одним JSON-документом.
// Атомарность замены обеспечивает транзакция Badger.
type BadgerStore struct {
	db  *badger.DB
	log *slog.Logger
}

// NewBadgerStore создает новый экземпляр BadgerStore поверх открытой БД.
func NewBadgerStore(db *badger.DB, log *slog.Logger) *BadgerStore {
	if log == nil {
		log = slog.Default()
	}
	return &BadgerStore{db: db, log: log}
}

// Load читает реестр. Если ключа нет, создается и сохраняется пустой реестр.
func (s *BadgerStore) Load(ctx context.Context) (domain.Registry, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(registryKey)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		s.log.InfoContext(ctx, "registry key not found, initializing empty registry")
		reg := domain.NewRegistry()
		if err := s.Save(ctx, reg); err != nil {
			return domain.Registry{}, err
		}
		return reg, nil
	}
	if err != nil {
		return domain.Registry{}, fmt.Errorf("failed to read registry from badger: %w", err)
	}

	return decode(data)
}

// Save заменяет документ реестра в одной транзакции.
func (s *BadgerStore) Save(_ context.Context, reg domain.Registry) error {
	data, err := encode(reg)
	if err != nil {
		return err
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(registryKey, data)
	}); err != nil {
		return fmt.Errorf("failed to write registry to badger: %w", err)
	}
	return nil
}
