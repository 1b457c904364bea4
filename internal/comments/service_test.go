package comments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rukundowilson/smartflow/internal/workflow"
)

type memoryRepo struct {
	nextID int64
	rows   []Comment
}

func (m *memoryRepo) Create(_ context.Context, c Comment) (Comment, error) {
	m.nextID++
	c.ID = m.nextID
	c.CreatedAt = time.Now()
	m.rows = append(m.rows, c)
	return c, nil
}

func (m *memoryRepo) ListFor(_ context.Context, kind workflow.Kind, commentedID int64) ([]Comment, error) {
	var out []Comment
	for _, c := range m.rows {
		if c.CommentType == kind && c.CommentedID == commentedID {
			out = append(out, c)
		}
	}
	return out, nil
}

func TestPostAndListComments(t *testing.T) {
	svc := NewService(&memoryRepo{})
	ctx := context.Background()

	first, err := svc.Post(ctx, 12, workflow.KindAccessRequest, 7, "checked with security, fine by me")
	require.NoError(t, err)
	require.EqualValues(t, 1, first.ID)

	_, err = svc.Post(ctx, 13, workflow.KindAccessRequest, 7, "granting read-only first")
	require.NoError(t, err)

	// Comments on another record stay separate.
	_, err = svc.Post(ctx, 13, workflow.KindTicket, 7, "unrelated ticket note")
	require.NoError(t, err)

	list, err := svc.ListFor(ctx, workflow.KindAccessRequest, 7)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "checked with security, fine by me", list[0].Content)
}

func TestPostCommentValidation(t *testing.T) {
	svc := NewService(&memoryRepo{})
	ctx := context.Background()

	_, err := svc.Post(ctx, 12, workflow.Kind("invoice"), 7, "hello")
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Post(ctx, 12, workflow.KindAccessRequest, 0, "hello")
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Post(ctx, 12, workflow.KindAccessRequest, 7, "   ")
	require.ErrorIs(t, err, ErrValidation)
}
