package comments

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rukundowilson/smartflow/internal/workflow"
)

// Repository persists comments in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a comment.
func (r *Repository) Create(ctx context.Context, c Comment) (Comment, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO comments
(comment_type, commented_id, commented_by, content, created_at)
VALUES ($1, $2, $3, $4, NOW())
RETURNING id, created_at`,
		string(c.CommentType), c.CommentedID, c.CommentedBy, c.Content).
		Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return Comment{}, err
	}
	return c, nil
}

// ListFor returns comments for one record in posting order, with the
// author's name joined in.
func (r *Repository) ListFor(ctx context.Context, kind workflow.Kind, commentedID int64) ([]Comment, error) {
	rows, err := r.pool.Query(ctx, `SELECT c.id, c.comment_type, c.commented_id, c.commented_by, u.name, c.content, c.created_at
FROM comments c JOIN users u ON u.id = c.commented_by
WHERE c.comment_type=$1 AND c.commented_id=$2
ORDER BY c.id ASC`, string(kind), commentedID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Comment
	for rows.Next() {
		var c Comment
		var kindStr string
		if err := rows.Scan(&c.ID, &kindStr, &c.CommentedID, &c.CommentedBy, &c.AuthorName, &c.Content, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CommentType = workflow.Kind(kindStr)
		out = append(out, c)
	}
	return out, rows.Err()
}
