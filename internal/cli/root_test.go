package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocrhub/pagetrack/internal/store"
)

// execute runs the command tree against a shared in-memory store and
// returns stdout.
func execute(t *testing.T, s store.Store, args ...string) (string, error) {
	t.Helper()

	opts := &rootOptions{
		openStore: func(context.Context) (store.Store, error) { return s, nil },
	}
	cmd := newRootCommand(opts)

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func mustExecute(t *testing.T, s store.Store, args ...string) string {
	t.Helper()
	out, err := execute(t, s, args...)
	require.NoError(t, err, "pagetrack %s: %s", strings.Join(args, " "), out)
	return out
}

func TestCreateShowComplete(t *testing.T) {
	s := store.NewMemory()

	out := mustExecute(t, s, "create", "--page", "P1", "--priority", "3", "--stages", "binarize,ocr")
	id := strings.TrimSpace(out)
	_, err := uuid.Parse(id)
	require.NoError(t, err, "create must print a uuid, got %q", out)

	out = mustExecute(t, s, "complete", id)
	assert.Equal(t, "false", strings.TrimSpace(out))

	mustExecute(t, s, "log", id, "--stage", "binarize", "--status", "success", "--host", "w1")
	mustExecute(t, s, "log", id, "--stage", "ocr", "--status", "success", "--host", "w1")

	out = mustExecute(t, s, "complete", id)
	assert.Equal(t, "true", strings.TrimSpace(out))

	out = mustExecute(t, s, "show", id)
	assert.Contains(t, out, `"page_uuid": "P1"`)
	assert.Contains(t, out, `"stage": "ocr"`)
}

func TestLogRejectsUndeclaredStage(t *testing.T) {
	s := store.NewMemory()

	id := strings.TrimSpace(mustExecute(t, s, "create", "--page", "P1", "--stages", "ocr"))

	_, err := execute(t, s, "log", id, "--stage", "translate", "--status", "success")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrInvalidArgument)
}

func TestResultReadsStdin(t *testing.T) {
	s := store.NewMemory()
	id := strings.TrimSpace(mustExecute(t, s, "create", "--page", "P1", "--stages", "ocr"))

	opts := &rootOptions{
		openStore: func(context.Context) (store.Store, error) { return s, nil },
	}
	cmd := newRootCommand(opts)
	cmd.SetIn(strings.NewReader("artifact-body"))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"result", id, "--name", "page.xml"})
	require.NoError(t, cmd.Execute(), out.String())

	req, err := s.GetRequest(context.Background(), uuid.MustParse(id))
	require.NoError(t, err)
	require.Len(t, req.Results, 1)
	assert.Equal(t, "page.xml", req.Results[0].Name)
	assert.Equal(t, []byte("artifact-body"), req.Results[0].Content)
}

func TestListShowsReprocessing(t *testing.T) {
	s := store.NewMemory()

	first := strings.TrimSpace(mustExecute(t, s, "create", "--page", "P1", "--stages", "ocr"))
	second := strings.TrimSpace(mustExecute(t, s, "create", "--page", "P1", "--stages", "ocr"))
	mustExecute(t, s, "create", "--page", "P2", "--stages", "ocr")

	out := mustExecute(t, s, "list", "--page", "P1")
	assert.Contains(t, out, first)
	assert.Contains(t, out, second)
	assert.Less(t, strings.Index(out, first), strings.Index(out, second),
		"older request must come first")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 3, "header plus two requests")
}

func TestDeleteUnknownRequest(t *testing.T) {
	s := store.NewMemory()
	_, err := execute(t, s, "delete", uuid.NewString())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestInvalidUUIDArgument(t *testing.T) {
	s := store.NewMemory()
	for _, args := range [][]string{
		{"show", "not-a-uuid"},
		{"complete", "not-a-uuid"},
		{"delete", "not-a-uuid"},
		{"log", "not-a-uuid", "--stage", "ocr", "--status", "success"},
	} {
		_, err := execute(t, s, args...)
		assert.Error(t, err, "args: %v", args)
	}
}
