package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greyledger/sitrep/internal/domain"
)

type stubSource struct {
	id    string
	items []domain.RawItem
	err   error
	calls int
}

func (s *stubSource) ID() string                { return s.id }
func (s *stubSource) Label() string             { return s.id }
func (s *stubSource) Class() domain.SourceClass { return domain.ClassSocial }

func (s *stubSource) Fetch(_ context.Context) ([]domain.RawItem, error) {
	s.calls++
	return s.items, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestChain_PrimarySucceeds(t *testing.T) {
	primary := &stubSource{id: "api", items: []domain.RawItem{{SourceID: "api"}}}
	mirror := &stubSource{id: "mirror"}

	c := NewChain("social:acct", "@acct", domain.ClassSocial, discardLogger(), primary, mirror)
	items, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 0, mirror.calls, "mirror not consulted when primary works")
}

func TestChain_FallsThroughToMirror(t *testing.T) {
	primary := &stubSource{id: "api", err: fmt.Errorf("auth: %w", domain.ErrSourceUnavailable)}
	mirror := &stubSource{id: "mirror", items: []domain.RawItem{{SourceID: "mirror"}}}

	c := NewChain("social:acct", "@acct", domain.ClassSocial, discardLogger(), primary, mirror)
	items, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, mirror.calls)
}

func TestChain_Exhaustion(t *testing.T) {
	a := &stubSource{id: "m1", err: fmt.Errorf("down: %w", domain.ErrSourceUnavailable)}
	b := &stubSource{id: "m2", err: fmt.Errorf("down: %w", domain.ErrSourceUnavailable)}

	c := NewChain("social:acct", "@acct", domain.ClassSocial, discardLogger(), a, b)
	items, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
	assert.Empty(t, items, "exhaustion yields an empty result, not a partial one")
}

func TestChain_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := &stubSource{id: "m1"}
	c := NewChain("social:acct", "@acct", domain.ClassSocial, discardLogger(), a)
	_, err := c.Fetch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, a.calls)
}
