package comments

import (
	"context"
	"fmt"
	"strings"

	"github.com/rukundowilson/smartflow/internal/workflow"
)

// RepositoryPort describes the persistence operations the service needs.
type RepositoryPort interface {
	Create(ctx context.Context, c Comment) (Comment, error)
	ListFor(ctx context.Context, kind workflow.Kind, commentedID int64) ([]Comment, error)
}

// Service manages reviewer comments.
type Service struct {
	repo RepositoryPort
}

// NewService constructs the service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Post attaches a comment to a record.
func (s *Service) Post(ctx context.Context, authorID int64, kind workflow.Kind, commentedID int64, content string) (Comment, error) {
	if !ValidCommentType(kind) {
		return Comment{}, fmt.Errorf("%w: unknown comment type %q", ErrValidation, kind)
	}
	if commentedID <= 0 {
		return Comment{}, fmt.Errorf("%w: commented_id required", ErrValidation)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return Comment{}, fmt.Errorf("%w: content required", ErrValidation)
	}
	return s.repo.Create(ctx, Comment{
		CommentType: kind,
		CommentedID: commentedID,
		CommentedBy: authorID,
		Content:     content,
	})
}

// ListFor returns the record's comments in posting order.
func (s *Service) ListFor(ctx context.Context, kind workflow.Kind, commentedID int64) ([]Comment, error) {
	if !ValidCommentType(kind) {
		return nil, fmt.Errorf("%w: unknown comment type %q", ErrValidation, kind)
	}
	return s.repo.ListFor(ctx, kind, commentedID)
}
