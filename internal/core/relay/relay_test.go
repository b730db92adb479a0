package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-relay-bot/internal/core/services"
	"telegram-relay-bot/internal/domain"
	"telegram-relay-bot/internal/ports"
)

type memStore struct {
	mu       sync.Mutex
	reg      domain.Registry
	saves    int
	LoadErr  error
	SaveFunc func(reg domain.Registry) error
}

func (m *memStore) Load(ctx context.Context) (domain.Registry, error) {
	if m.LoadErr != nil {
		return domain.Registry{}, m.LoadErr
	}
	return m.reg.Clone(), nil
}

func (m *memStore) Save(ctx context.Context, reg domain.Registry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveFunc != nil {
		if err := m.SaveFunc(reg); err != nil {
			return err
		}
	}
	m.saves++
	m.reg = reg.Clone()
	return nil
}

func (m *memStore) Saved() (domain.Registry, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reg.Clone(), m.saves
}

type recorder struct {
	mu    sync.Mutex
	calls []string
	err   map[string]error
}

func (r *recorder) Forward(ctx context.Context, chatID string, msg domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, chatID)
	return r.err[chatID]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRelay(t *testing.T, store ports.Store, fwd ports.Forwarder, probe ports.MembershipProbe) *Relay {
	t.Helper()
	if probe == nil {
		probe = ports.ProbeFunc(func(ctx context.Context, chatID string) (domain.ChatInfo, error) {
			return domain.ChatInfo{}, errors.New("not found")
		})
	}
	r, err := New(context.Background(),
		store,
		services.NewForwardingService(fwd, services.WithForwardLogger(discardLogger())),
		services.NewReconciliationService(probe, services.WithReconcileLogger(discardLogger())),
		discardLogger(),
	)
	require.NoError(t, err)
	return r
}

func TestNew_LoadError(t *testing.T) {
	store := &memStore{LoadErr: domain.ErrCorruptState}

	_, err := New(context.Background(), store, nil, nil, discardLogger())

	assert.ErrorIs(t, err, domain.ErrCorruptState)
}

func TestRelay_IncomingMessage(t *testing.T) {
	ctx := context.Background()
	msg := domain.Message{FromChatID: "1", MessageID: 10}

	t.Run("админ без авторизованных чатов", func(t *testing.T) {
		fwd := &recorder{}
		store := &memStore{reg: domain.Registry{
			Admins: []domain.Admin{{ID: "1", Name: "Root"}},
			Chats:  []domain.Chat{},
		}}
		r := newRelay(t, store, fwd, nil)

		res, err := r.Dispatch(ctx, domain.IncomingMessage{SenderID: "1", Message: msg})

		require.NoError(t, err)
		require.NotNil(t, res.FanOut)
		assert.Equal(t, domain.FanOutNoDestinations, res.FanOut.Status)
		assert.Empty(t, fwd.calls)
	})

	t.Run("не админ не вызывает пересылку", func(t *testing.T) {
		fwd := &recorder{}
		store := &memStore{reg: domain.Registry{
			Admins: []domain.Admin{{ID: "1"}},
			Chats:  []domain.Chat{{ID: "100", Authorized: true}},
		}}
		r := newRelay(t, store, fwd, nil)

		res, err := r.Dispatch(ctx, domain.IncomingMessage{SenderID: "2", Message: domain.Message{FromChatID: "2", MessageID: 1}})

		require.NoError(t, err)
		assert.Equal(t, domain.FanOutUnauthorized, res.FanOut.Status)
		assert.Empty(t, fwd.calls)
	})

	t.Run("ошибка одного чата не мешает остальным", func(t *testing.T) {
		fwd := &recorder{err: map[string]error{"B": errors.New("Forbidden")}}
		store := &memStore{reg: domain.Registry{
			Admins: []domain.Admin{{ID: "1"}},
			Chats: []domain.Chat{
				{ID: "A", Name: "a", Authorized: true},
				{ID: "B", Name: "b", Authorized: true},
				{ID: "C", Name: "c", Authorized: true},
			},
		}}
		r := newRelay(t, store, fwd, nil)

		res, err := r.Dispatch(ctx, domain.IncomingMessage{SenderID: "1", Message: msg})

		require.NoError(t, err)
		assert.Equal(t, domain.FanOutCompleted, res.FanOut.Status)
		assert.Equal(t, 2, res.FanOut.DeliveredCount())
		assert.ElementsMatch(t, []string{"A", "B", "C"}, fwd.calls)
	})
}

func TestRelay_MembershipChanged(t *testing.T) {
	ctx := context.Background()

	t.Run("добавление и удаление чата", func(t *testing.T) {
		store := &memStore{reg: domain.NewRegistry()}
		r := newRelay(t, store, &recorder{}, nil)

		_, err := r.Dispatch(ctx, domain.MembershipChanged{
			ChatID: "-100", Kind: domain.ChatKindSupergroup, Status: domain.MemberStatusMember, Title: "Ops",
		})
		require.NoError(t, err)

		assert.Equal(t, []string{"-100"}, r.AuthorizedDestinations())
		saved, saves := store.Saved()
		assert.Equal(t, 1, saves)
		assert.Equal(t, []domain.Chat{{ID: "-100", Name: "Ops", Authorized: true}}, saved.Chats)

		res, err := r.Dispatch(ctx, domain.MembershipChanged{
			ChatID: "-100", Kind: domain.ChatKindSupergroup, Status: domain.MemberStatusKicked, Title: "Ops",
		})
		require.NoError(t, err)

		assert.Equal(t, 1, res.Chats)
		assert.Empty(t, r.AuthorizedDestinations())
		assert.Equal(t, []string{"-100"}, r.ChatIDs())
		saved, _ = store.Saved()
		assert.Equal(t, []domain.Chat{{ID: "-100", Name: "Ops", Authorized: false}}, saved.Chats)
	})

	t.Run("личные чаты не сохраняются", func(t *testing.T) {
		store := &memStore{reg: domain.NewRegistry()}
		r := newRelay(t, store, &recorder{}, nil)

		_, err := r.Dispatch(ctx, domain.MembershipChanged{
			ChatID: "5", Kind: domain.ChatKindPrivate, Status: domain.MemberStatusMember,
		})

		require.NoError(t, err)
		_, saves := store.Saved()
		assert.Zero(t, saves)
		assert.Empty(t, r.ChatIDs())
	})

	t.Run("ошибка сохранения не меняет состояние в памяти", func(t *testing.T) {
		store := &memStore{reg: domain.NewRegistry()}
		r := newRelay(t, store, &recorder{}, nil)
		store.SaveFunc = func(domain.Registry) error { return errors.New("disk full") }

		_, err := r.Dispatch(ctx, domain.MembershipChanged{
			ChatID: "-1", Kind: domain.ChatKindGroup, Status: domain.MemberStatusMember,
		})

		require.Error(t, err)
		assert.Empty(t, r.ChatIDs())
	})
}

func TestRelay_Startup(t *testing.T) {
	ctx := context.Background()

	probe := ports.ProbeFunc(func(ctx context.Context, chatID string) (domain.ChatInfo, error) {
		switch chatID {
		case "-1":
			return domain.ChatInfo{Status: domain.MemberStatusLeft, Kind: domain.ChatKindGroup, Title: "X"}, nil
		case "-2":
			return domain.ChatInfo{Status: domain.MemberStatusAdministrator, Kind: domain.ChatKindSupergroup, Title: "Y2"}, nil
		default:
			return domain.ChatInfo{}, errors.New("chat not found")
		}
	})
	store := &memStore{reg: domain.Registry{
		Admins: []domain.Admin{{ID: "1"}},
		Chats: []domain.Chat{
			{ID: "-1", Name: "X", Authorized: true},
			{ID: "-2", Name: "Y", Authorized: false},
			{ID: "-3", Name: "Z", Authorized: true},
		},
	}}
	r := newRelay(t, store, &recorder{}, probe)

	res, err := r.Dispatch(ctx, domain.Startup{})

	require.NoError(t, err)
	assert.Equal(t, 3, res.Chats)
	assert.Equal(t, []string{"-2"}, r.AuthorizedDestinations())

	saved, saves := store.Saved()
	assert.Equal(t, 1, saves)
	assert.Equal(t, []domain.Chat{
		{ID: "-1", Name: "X", Authorized: false},
		{ID: "-2", Name: "Y2", Authorized: true},
		{ID: "-3", Name: "Z", Authorized: false},
	}, saved.Chats)
}

type unknownEvent struct{ domain.Startup }

func TestRelay_Dispatch_UnknownEvent(t *testing.T) {
	r := newRelay(t, &memStore{reg: domain.NewRegistry()}, &recorder{}, nil)

	_, err := r.Dispatch(context.Background(), unknownEvent{})
	assert.ErrorIs(t, err, domain.ErrUnknownEvent)

	_, err = r.Dispatch(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrUnknownEvent)
}

func TestRelay_Seed(t *testing.T) {
	ctx := context.Background()

	t.Run("пустой реестр заполняется", func(t *testing.T) {
		store := &memStore{reg: domain.NewRegistry()}
		r := newRelay(t, store, &recorder{}, nil)

		err := r.Seed(ctx,
			[]domain.Admin{{ID: "1", Name: "Root"}},
			[]domain.Chat{{ID: "-1", Name: "Ops", Authorized: true}},
		)

		require.NoError(t, err)
		assert.Equal(t, []string{"1"}, r.AdminIDs())
		assert.Equal(t, []string{"-1"}, r.AuthorizedDestinations())
		_, saves := store.Saved()
		assert.Equal(t, 1, saves)
	})

	t.Run("существующие списки не перезаписываются", func(t *testing.T) {
		store := &memStore{reg: domain.Registry{
			Admins: []domain.Admin{{ID: "7"}},
			Chats:  []domain.Chat{{ID: "-9", Authorized: true}},
		}}
		r := newRelay(t, store, &recorder{}, nil)

		err := r.Seed(ctx, []domain.Admin{{ID: "1"}}, []domain.Chat{{ID: "-1", Authorized: true}})

		require.NoError(t, err)
		assert.Equal(t, []string{"7"}, r.AdminIDs())
		assert.Equal(t, []string{"-9"}, r.ChatIDs())
		_, saves := store.Saved()
		assert.Zero(t, saves)
	})

	t.Run("запись без ID отклоняется", func(t *testing.T) {
		store := &memStore{reg: domain.NewRegistry()}
		r := newRelay(t, store, &recorder{}, nil)

		err := r.Seed(ctx,
			[]domain.Admin{{Name: "nobody"}},
			[]domain.Chat{{ID: "-1", Name: "Ops", Authorized: true}},
		)

		require.Error(t, err)
		assert.Empty(t, r.AdminIDs())
		assert.Empty(t, r.ChatIDs())
		_, saves := store.Saved()
		assert.Zero(t, saves)
	})

	t.Run("чат без ID отклоняется", func(t *testing.T) {
		store := &memStore{reg: domain.NewRegistry()}
		r := newRelay(t, store, &recorder{}, nil)

		err := r.Seed(ctx, nil, []domain.Chat{{ID: " ", Name: "Ops"}})

		require.Error(t, err)
		_, saves := store.Saved()
		assert.Zero(t, saves)
	})
}

func TestRelay_ConcurrentDispatch(t *testing.T) {
	ctx := context.Background()
	const n = 50

	store := &memStore{reg: domain.Registry{Admins: []domain.Admin{{ID: "1", Name: "Root"}}}}
	fwd := &recorder{}
	r := newRelay(t, store, fwd, nil)

	var wg sync.WaitGroup
	results := make(chan domain.FanOutResult, n)
	for i := range n {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := r.Dispatch(ctx, domain.MembershipChanged{
				ChatID: fmt.Sprintf("-%d", 1000+i),
				Kind:   domain.ChatKindSupergroup,
				Status: domain.MemberStatusMember,
				Title:  fmt.Sprintf("Chat %d", i),
			})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			res, err := r.Dispatch(ctx, domain.IncomingMessage{
				SenderID: "1",
				Message:  domain.Message{FromChatID: "1", MessageID: i},
			})
			assert.NoError(t, err)
			if res.FanOut != nil {
				results <- *res.FanOut
			}
		}()
	}
	wg.Wait()
	close(results)

	// ни одно изменение не потеряно
	saved, saves := store.Saved()
	assert.Len(t, saved.Chats, n)
	assert.Equal(t, n, saves)
	assert.Len(t, r.AuthorizedDestinations(), n)
	assert.Len(t, r.ChatIDs(), n)

	// каждая рассылка видела согласованный список без повторов
	total := 0
	for res := range results {
		assert.NotEqual(t, domain.FanOutUnauthorized, res.Status)
		seen := make(map[string]bool, len(res.Outcomes))
		for _, o := range res.Outcomes {
			assert.False(t, seen[o.ChatID], "повторная доставка в %s", o.ChatID)
			seen[o.ChatID] = true
			assert.True(t, o.Delivered())
		}
		total += len(res.Outcomes)
	}
	fwd.mu.Lock()
	defer fwd.mu.Unlock()
	assert.Len(t, fwd.calls, total)
}

func TestRelay_SnapshotIsIndependent(t *testing.T) {
	store := &memStore{reg: domain.Registry{Chats: []domain.Chat{{ID: "-1", Name: "Ops", Authorized: true}}}}
	r := newRelay(t, store, &recorder{}, nil)

	snap := r.Snapshot()
	snap.Chats[0].Authorized = false

	assert.Equal(t, []string{"-1"}, r.AuthorizedDestinations())
}
