package registry

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"telegram-relay-bot/internal/ports"
)

// ErrUnknownDriver возвращается для неподдерживаемого драйвера хранилища.
var ErrUnknownDriver = errors.New("unknown registry driver")

const (
	DriverFile   = "file"
	DriverBadger = "badger"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open создает хранилище реестра для указанного драйвера.
// Возвращаемый io.Closer нужно закрыть при завершении работы.
func Open(driver, path string, log *slog.Logger) (ports.Store, io.Closer, error) {
	switch driver {
	case "", DriverFile:
		return NewFileStore(path, log), nopCloser{}, nil
	case DriverBadger:
		db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open badger at %s: %w", path, err)
		}
		return NewBadgerStore(db, log), db, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
