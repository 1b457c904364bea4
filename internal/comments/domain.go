package comments

import (
	"errors"
	"time"

	"github.com/rukundowilson/smartflow/internal/workflow"
)

// Comment is reviewer discussion attached to a workflow record,
// addressed by (comment_type, commented_id). It complements the
// approval ledger, which only carries per-transition comments.
type Comment struct {
	ID          int64
	CommentType workflow.Kind
	CommentedID int64
	CommentedBy int64
	AuthorName  string
	Content     string
	CreatedAt   time.Time
}

// ErrValidation indicates a malformed comment.
var ErrValidation = errors.New("comments: validation failed")

// ValidCommentType reports whether the type names a known record kind.
func ValidCommentType(kind workflow.Kind) bool {
	_, ok := workflow.Rules(kind)
	return ok
}
