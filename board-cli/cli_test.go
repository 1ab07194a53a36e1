package main

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/123123eeqweq/omocrm/api"
	"github.com/123123eeqweq/omocrm/domain"
	"github.com/123123eeqweq/omocrm/session"
	"github.com/123123eeqweq/omocrm/storage"
)

func testApp(t *testing.T) (*App, *storage.SQLStore) {
	t.Helper()
	repo, err := storage.OpenSQL(context.Background(), storage.BackendSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	logger := log.New()
	logger.SetOutput(io.Discard)
	e := echo.New()
	e.JSONSerializer = api.JSONSerializer{}
	e.HTTPErrorHandler = api.HTTPErrorHandler(logger)
	gate := api.NewGate(api.GateConfig{
		Policy:     domain.AuthServerSession,
		Login:      "admin",
		Password:   "secret",
		CookieName: "omocrm.sid",
	}, session.NewManager(session.NewMemoryStore(), "test-secret", time.Hour))
	api.Register(e, repo, gate, logger)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	return &App{
		APIURL:        srv.URL,
		StatePath:     filepath.Join(t.TempDir(), "state.toml"),
		Policy:        domain.AuthServerSession,
		Logger:        logger,
		IsInteractive: func() bool { return false },
	}, repo
}

// executeCmd runs a cobra command and captures stdout/stderr.
func executeCmd(t *testing.T, app *App, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(app)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func login(t *testing.T, app *App) {
	t.Helper()
	out, err := executeCmd(t, app, "login", "--login", "admin", "--password", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as admin")
}

func TestLoginWrongPassword(t *testing.T) {
	app, _ := testApp(t)
	_, err := executeCmd(t, app, "login", "--login", "admin", "--password", "wrong")
	require.Error(t, err)
	assert.Equal(t, "Неверный логин или пароль", err.Error())

	_, err = executeCmd(t, app, "whoami")
	assert.EqualError(t, err, "not logged in")
}

func TestLoginRequiresFlagsWithoutTerminal(t *testing.T) {
	app, _ := testApp(t)
	_, err := executeCmd(t, app, "login", "--login", "admin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--password")
}

func TestWhoamiAfterLogin(t *testing.T) {
	app, _ := testApp(t)
	login(t, app)

	out, err := executeCmd(t, app, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "admin")

	out, err = executeCmd(t, app, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")

	_, err = executeCmd(t, app, "whoami")
	assert.EqualError(t, err, "not logged in")
}

func TestBoardRequiresSession(t *testing.T) {
	app, _ := testApp(t)
	_, err := executeCmd(t, app, "board", "show", "--project", "p1")
	assert.ErrorIs(t, err, errSessionExpired)
}

func TestCardWorkflow(t *testing.T) {
	app, repo := testApp(t)
	login(t, app)

	out, err := executeCmd(t, app, "board", "show", "--project", "p1")
	require.NoError(t, err)
	assert.Contains(t, out, "Планы (0)")

	out, err = executeCmd(t, app, "card", "add", "plans", "Write", "docs", "--project", "p1")
	require.NoError(t, err)
	assert.Contains(t, out, "Write docs")

	doc, err := repo.Get(context.Background(), "p1")
	require.NoError(t, err)
	b, err := doc.Decode()
	require.NoError(t, err)
	require.Len(t, b.Cards, 1)
	card := b.Cards[0]
	assert.Equal(t, domain.ColumnPlans, card.ColumnID)

	_, err = executeCmd(t, app, "card", "move", card.ID, "done", "--project", "p1")
	require.NoError(t, err)
	_, err = executeCmd(t, app, "card", "edit", card.ID[:len(card.ID)-2], "Docs", "written", "--project", "p1")
	require.NoError(t, err)

	doc, err = repo.Get(context.Background(), "p1")
	require.NoError(t, err)
	b, err = doc.Decode()
	require.NoError(t, err)
	assert.Equal(t, []domain.Card{{ID: card.ID, ColumnID: domain.ColumnDone, Title: "Docs written"}}, b.Cards)

	out, err = executeCmd(t, app, "card", "move", card.ID, "done", "--project", "p1")
	require.NoError(t, err)
	assert.Contains(t, out, "already in that column")

	_, err = executeCmd(t, app, "card", "add", "nowhere", "--project", "p1")
	assert.Error(t, err)

	_, err = executeCmd(t, app, "card", "rm", card.ID, "--project", "p1")
	require.NoError(t, err)
	doc, err = repo.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(doc.Cards))
}

func TestStepWorkflow(t *testing.T) {
	app, repo := testApp(t)
	login(t, app)

	for _, title := range []string{"First", "Second", "Third"} {
		_, err := executeCmd(t, app, "step", "add", title, "-p", "p2")
		require.NoError(t, err)
	}
	_, err := executeCmd(t, app, "step", "toggle", "2", "-p", "p2")
	require.NoError(t, err)
	_, err = executeCmd(t, app, "step", "move", "3", "1", "-p", "p2")
	require.NoError(t, err)
	out, err := executeCmd(t, app, "step", "rm", "2", "-p", "p2")
	require.NoError(t, err)
	assert.Contains(t, out, " 1. [ ] Third")

	doc, err := repo.Get(context.Background(), "p2")
	require.NoError(t, err)
	b, err := doc.Decode()
	require.NoError(t, err)
	require.Len(t, b.Steps, 2)
	assert.Equal(t, "Third", b.Steps[0].Title)
	assert.Equal(t, "Second", b.Steps[1].Title)
	assert.True(t, b.Steps[1].Completed)
}

func TestTodoBoard(t *testing.T) {
	app, repo := testApp(t)
	login(t, app)

	out, err := executeCmd(t, app, "card", "add", "dovi", "--todo")
	require.NoError(t, err)
	assert.Contains(t, out, "Новая карточка")
	assert.NotContains(t, out, "Дорожная карта")

	_, err = executeCmd(t, app, "step", "add", "x", "--todo")
	assert.EqualError(t, err, "this board has no roadmap")

	doc, err := repo.Get(context.Background(), domain.TodoBoardID)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(doc.Steps))

	_, err = executeCmd(t, app, "board", "show", "--todo", "--project", "p1")
	assert.Error(t, err)
}

func TestResolveID(t *testing.T) {
	ids := []string{"card-a1-x", "card-a2-y", "card-b1-z"}
	got, err := resolveID("card", ids, "card-b")
	require.NoError(t, err)
	assert.Equal(t, "card-b1-z", got)

	_, err = resolveID("card", ids, "card-a")
	assert.ErrorContains(t, err, "ambiguous")
	_, err = resolveID("card", ids, "zzz")
	assert.ErrorContains(t, err, "no card")
}
