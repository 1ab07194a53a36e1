// Package board holds the client-side working copy of one board and keeps
// the server in sync with it.
package board

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/123123eeqweq/omocrm/client"
	"github.com/123123eeqweq/omocrm/domain"
)

const (
	DefaultCardTitle = "Новая карточка"
	DefaultStepTitle = "Новый шаг"

	MsgLoadFailed = "Не удалось загрузить доску"
	MsgSaveFailed = "Не удалось сохранить"

	defaultSaveTimeout = 30 * time.Second
)

var (
	// ErrNotLoading is returned by Load on a view-model that already loaded.
	ErrNotLoading = errors.New("board already loaded")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("board closed")
)

// State is the lifecycle state of a board session.
type State int

const (
	StateLoading State = iota
	StateReady
	StateLoadError
	StateUnauthorized
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateLoadError:
		return "load-error"
	case StateUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// API is the part of the board client the view-model needs.
type API interface {
	LoadBoard(ctx context.Context, projectID string) (domain.Board, error)
	SaveBoard(ctx context.Context, projectID string, b domain.Board) error
}

// Invalidator drops local auth state after the server answered 401.
type Invalidator interface {
	Invalidate()
}

// Options configures a ViewModel.
type Options struct {
	// Columns cards may be placed in. Defaults to the project columns.
	Columns []domain.Column
	// CardsOnly hides the roadmap; steps are always saved as [].
	CardsOnly bool
	// Debounce coalesces mutations within the window into one save. Zero
	// saves once per mutation.
	Debounce time.Duration
	// SaveTimeout bounds each save call.
	SaveTimeout time.Duration
	// Gate is invalidated on 401.
	Gate Invalidator
	// OnUnauthorized runs after a 401, e.g. to send the user to login.
	OnUnauthorized func()
	Logger         *log.Logger
}

// ProjectOptions are the options for a regular project board.
func ProjectOptions() Options {
	return Options{Columns: domain.ProjectColumns}
}

// TodoOptions are the options for the shared ToDo board.
func TodoOptions() Options {
	return Options{Columns: domain.TodoColumns, CardsOnly: true}
}

// ViewModel is the working copy of one board. Mutations apply immediately
// and are saved in order by a single background syncer.
type ViewModel struct {
	api       API
	projectID string
	opts      Options
	logger    *log.Logger

	mu       sync.Mutex
	state    State
	loadErr  string
	saveErr  string
	board    domain.Board
	queue    []saveJob
	lastErr  error
	closed   bool
	unauthed bool
	loading  bool

	wake    chan struct{}
	flushed chan struct{}
	quit    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// New creates a ViewModel in the loading state and starts its syncer.
func New(api API, projectID string, opts Options) *ViewModel {
	if len(opts.Columns) == 0 {
		opts.Columns = domain.ProjectColumns
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = defaultSaveTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New()
		logger.SetOutput(io.Discard)
	}
	vm := &ViewModel{
		api:       api,
		projectID: projectID,
		opts:      opts,
		logger:    logger,
		state:     StateLoading,
		board:     domain.Board{Cards: []domain.Card{}, Steps: []domain.Step{}},
		wake:      make(chan struct{}, 1),
		flushed:   make(chan struct{}, 1),
		quit:      make(chan struct{}),
	}
	vm.wg.Add(1)
	go vm.run()
	return vm
}

// Load fetches the board and enters ready, load-error or unauthorized.
// Only one Load runs; concurrent and later calls get ErrNotLoading.
func (vm *ViewModel) Load(ctx context.Context) error {
	vm.mu.Lock()
	if vm.state != StateLoading || vm.loading {
		vm.mu.Unlock()
		return ErrNotLoading
	}
	vm.loading = true
	vm.mu.Unlock()

	b, err := vm.api.LoadBoard(ctx, vm.projectID)
	if err != nil {
		if client.IsUnauthorized(err) {
			vm.mu.Lock()
			vm.state = StateUnauthorized
			vm.mu.Unlock()
			vm.unauthorized()
			return err
		}
		vm.logger.WithError(err).WithField("project", vm.projectID).Warn("load board")
		vm.mu.Lock()
		vm.state = StateLoadError
		vm.loadErr = MsgLoadFailed
		vm.mu.Unlock()
		return err
	}

	b = b.Clone()
	if vm.opts.CardsOnly {
		b.Steps = []domain.Step{}
	}
	vm.mu.Lock()
	vm.board = b
	vm.state = StateReady
	vm.mu.Unlock()
	return nil
}

// State returns the current lifecycle state.
func (vm *ViewModel) State() State {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.state
}

// LoadError is the message shown in the load-error state.
func (vm *ViewModel) LoadError() string {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.loadErr
}

// SaveError is the message of the last failed save, empty if none.
func (vm *ViewModel) SaveError() string {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.saveErr
}

// DismissSaveError hides the save error without retrying. A later Flush
// with nothing pending no longer reports it.
func (vm *ViewModel) DismissSaveError() {
	vm.mu.Lock()
	vm.saveErr = ""
	vm.lastErr = nil
	vm.mu.Unlock()
}

// Board returns a copy of the working board.
func (vm *ViewModel) Board() domain.Board {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.board.Clone()
}

// Columns returns the columns of this board.
func (vm *ViewModel) Columns() []domain.Column {
	return vm.opts.Columns
}

// CardsOnly reports whether the roadmap is hidden.
func (vm *ViewModel) CardsOnly() bool {
	return vm.opts.CardsOnly
}

// ProjectID returns the id of the board.
func (vm *ViewModel) ProjectID() string {
	return vm.projectID
}

// commit applies mutate to the working board and schedules a save when it
// reports a change. Mutations outside the ready state are ignored.
func (vm *ViewModel) commit(mutate func(b *domain.Board) bool) bool {
	vm.mu.Lock()
	if vm.state != StateReady || vm.closed {
		vm.mu.Unlock()
		return false
	}
	if !mutate(&vm.board) {
		vm.mu.Unlock()
		return false
	}
	vm.enqueueLocked(saveJob{board: vm.snapshotLocked()})
	vm.mu.Unlock()
	vm.signal()
	return true
}

func (vm *ViewModel) snapshotLocked() *domain.Board {
	b := vm.board.Clone()
	if vm.opts.CardsOnly {
		b.Steps = []domain.Step{}
	}
	return &b
}

func normalizeTitle(title, fallback string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	return fallback
}

// AddCard appends a card to column. A blank title becomes the default.
func (vm *ViewModel) AddCard(column, title string) (domain.Card, bool) {
	if !domain.HasColumn(vm.opts.Columns, column) {
		return domain.Card{}, false
	}
	card := domain.Card{ID: domain.NewCardID(), ColumnID: column, Title: normalizeTitle(title, DefaultCardTitle)}
	ok := vm.commit(func(b *domain.Board) bool {
		b.Cards = append(b.Cards, card)
		return true
	})
	return card, ok
}

// UpdateCard renames a card. A blank title keeps the previous one.
func (vm *ViewModel) UpdateCard(id, title string) bool {
	return vm.commit(func(b *domain.Board) bool {
		i := cardIndex(b.Cards, id)
		if i < 0 {
			return false
		}
		b.Cards[i].Title = normalizeTitle(title, b.Cards[i].Title)
		return true
	})
}

// RemoveCard deletes a card.
func (vm *ViewModel) RemoveCard(id string) bool {
	return vm.commit(func(b *domain.Board) bool {
		i := cardIndex(b.Cards, id)
		if i < 0 {
			return false
		}
		b.Cards = append(b.Cards[:i:i], b.Cards[i+1:]...)
		return true
	})
}

// MoveCard drops card cardID onto overID, which is either a column or another
// card whose column is inherited. Only the card's column changes; dropping
// onto its own column does nothing.
func (vm *ViewModel) MoveCard(cardID, overID string) bool {
	return vm.commit(func(b *domain.Board) bool {
		i := cardIndex(b.Cards, cardID)
		if i < 0 {
			return false
		}
		target := vm.columnOf(b, overID)
		if target == "" || target == b.Cards[i].ColumnID {
			return false
		}
		b.Cards[i].ColumnID = target
		return true
	})
}

func (vm *ViewModel) columnOf(b *domain.Board, id string) string {
	if domain.HasColumn(vm.opts.Columns, id) {
		return id
	}
	if i := cardIndex(b.Cards, id); i >= 0 {
		return b.Cards[i].ColumnID
	}
	return ""
}

// AddStep appends a roadmap step. A blank title becomes the default.
func (vm *ViewModel) AddStep(title string) (domain.Step, bool) {
	if vm.opts.CardsOnly {
		return domain.Step{}, false
	}
	step := domain.Step{ID: domain.NewStepID(), Title: normalizeTitle(title, DefaultStepTitle)}
	ok := vm.commit(func(b *domain.Board) bool {
		b.Steps = append(b.Steps, step)
		return true
	})
	return step, ok
}

// UpdateStep renames a step. A blank title keeps the previous one.
func (vm *ViewModel) UpdateStep(id, title string) bool {
	return vm.stepCommit(func(b *domain.Board) bool {
		i := stepIndex(b.Steps, id)
		if i < 0 {
			return false
		}
		b.Steps[i].Title = normalizeTitle(title, b.Steps[i].Title)
		return true
	})
}

// RemoveStep deletes a step; later steps are renumbered.
func (vm *ViewModel) RemoveStep(id string) bool {
	return vm.stepCommit(func(b *domain.Board) bool {
		i := stepIndex(b.Steps, id)
		if i < 0 {
			return false
		}
		b.Steps = append(b.Steps[:i:i], b.Steps[i+1:]...)
		return true
	})
}

// ToggleStep flips a step's completion flag.
func (vm *ViewModel) ToggleStep(id string) bool {
	return vm.stepCommit(func(b *domain.Board) bool {
		i := stepIndex(b.Steps, id)
		if i < 0 {
			return false
		}
		b.Steps[i].Completed = !b.Steps[i].Completed
		return true
	})
}

// MoveStep moves step activeID to the position of overID, shifting the steps
// in between. Dropping a step onto itself does nothing.
func (vm *ViewModel) MoveStep(activeID, overID string) bool {
	if activeID == overID {
		return false
	}
	return vm.stepCommit(func(b *domain.Board) bool {
		from := stepIndex(b.Steps, activeID)
		to := stepIndex(b.Steps, overID)
		if from < 0 || to < 0 || from == to {
			return false
		}
		b.Steps = moveItem(b.Steps, from, to)
		return true
	})
}

func (vm *ViewModel) stepCommit(mutate func(b *domain.Board) bool) bool {
	if vm.opts.CardsOnly {
		return false
	}
	return vm.commit(mutate)
}

func cardIndex(cards []domain.Card, id string) int {
	for i := range cards {
		if cards[i].ID == id {
			return i
		}
	}
	return -1
}

func stepIndex(steps []domain.Step, id string) int {
	for i := range steps {
		if steps[i].ID == id {
			return i
		}
	}
	return -1
}

// moveItem returns a copy of s with the element at from moved to to.
func moveItem[T any](s []T, from, to int) []T {
	out := make([]T, 0, len(s))
	item := s[from]
	for i, v := range s {
		if i == from {
			continue
		}
		out = append(out, v)
	}
	out = append(out[:to], append([]T{item}, out[to:]...)...)
	return out
}
