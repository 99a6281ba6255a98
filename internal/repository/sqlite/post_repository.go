package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"blog-writer/internal/domain"
	"blog-writer/internal/repository"
)

const createPostsTable = `
CREATE TABLE IF NOT EXISTS posts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	author_id INTEGER NOT NULL,
	title TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	FOREIGN KEY(author_id) REFERENCES users(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_posts_author_id ON posts(author_id);
CREATE INDEX IF NOT EXISTS idx_posts_status ON posts(status);
`

const selectPostColumns = `
SELECT id, author_id, title, content, status, error_message, archive_location, created_at, updated_at
FROM posts`

type PostRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) repository.PostRepository {
	return &PostRepository{db: db}
}

func (r *PostRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createPostsTable); err != nil {
		return fmt.Errorf("create posts table: %w", err)
	}
	return ensureColumns(ctx, r.db, "posts", [][2]string{
		{"error_message", "TEXT NOT NULL DEFAULT ''"},
		{"archive_location", "TEXT NOT NULL DEFAULT ''"},
	})
}

func (r *PostRepository) Create(ctx context.Context, post *domain.Post) (int64, error) {
	if !post.Status.Valid() {
		return 0, fmt.Errorf("insert post: unknown status %q", post.Status)
	}
	now := time.Now().UTC()
	post.CreatedAt = now
	post.UpdatedAt = now

	res, err := r.db.ExecContext(ctx, `
INSERT INTO posts (author_id, title, content, status, error_message, archive_location, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		post.AuthorID,
		post.Title,
		post.Content,
		string(post.Status),
		post.ErrorMessage,
		post.ArchiveLocation,
		post.CreatedAt,
		post.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert post: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	post.ID = id
	return id, nil
}

func (r *PostRepository) Get(ctx context.Context, id int64) (*domain.Post, error) {
	row := r.db.QueryRowContext(ctx, selectPostColumns+`
WHERE id=?`, id)
	return scanPost(row)
}

func (r *PostRepository) GetOwned(ctx context.Context, id, authorID int64) (*domain.Post, error) {
	row := r.db.QueryRowContext(ctx, selectPostColumns+`
WHERE id=? AND author_id=?`, id, authorID)
	return scanPost(row)
}

func (r *PostRepository) ListByAuthor(ctx context.Context, authorID int64) ([]domain.Post, error) {
	rows, err := r.db.QueryContext(ctx, selectPostColumns+`
WHERE author_id=?
ORDER BY id DESC`, authorID)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	return collectPosts(rows)
}

func (r *PostRepository) ListByStatuses(ctx context.Context, statuses ...domain.PostStatus) ([]domain.Post, error) {
	if len(statuses) == 0 {
		return []domain.Post{}, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		placeholders[i] = "?"
		args[i] = string(status)
	}

	query := fmt.Sprintf(selectPostColumns+`
WHERE status IN (%s)
ORDER BY id ASC`, strings.Join(placeholders, ","))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts by status: %w", err)
	}
	defer rows.Close()

	return collectPosts(rows)
}

// UpdateOwned writes only the fields present in update. A content change is
// only applied to completed posts; otherwise ErrStaleStatus is returned.
func (r *PostRepository) UpdateOwned(ctx context.Context, id, authorID int64, update domain.PostUpdate) error {
	sets := []string{"updated_at=?"}
	args := []any{time.Now().UTC()}
	if update.Title != nil {
		sets = append(sets, "title=?")
		args = append(args, *update.Title)
	}
	if update.Content != nil {
		sets = append(sets, "content=?")
		args = append(args, *update.Content)
	}

	query := fmt.Sprintf(`UPDATE posts SET %s WHERE id=? AND author_id=?`, strings.Join(sets, ", "))
	args = append(args, id, authorID)
	if update.Content != nil {
		query += ` AND status=?`
		args = append(args, string(domain.PostStatusCompleted))
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("post update rows affected: %w", err)
	}
	if aff > 0 {
		return nil
	}

	if _, err := r.GetOwned(ctx, id, authorID); err != nil {
		return err
	}
	return fmt.Errorf("update post content: %w", repository.ErrStaleStatus)
}

// Transition moves a post from one status to another in a single conditional
// write. content is left untouched when nil.
func (r *PostRepository) Transition(ctx context.Context, id int64, from, to domain.PostStatus, content *string, errorMessage string) error {
	var contentArg any
	if content != nil {
		contentArg = *content
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE posts
SET status=?, content=COALESCE(?, content), error_message=?, updated_at=?
WHERE id=? AND status=?`,
		string(to),
		contentArg,
		errorMessage,
		time.Now().UTC(),
		id,
		string(from),
	)
	if err != nil {
		return fmt.Errorf("update post status: %w", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("post status rows affected: %w", err)
	}
	if aff > 0 {
		return nil
	}

	var current string
	if err := r.db.QueryRowContext(ctx, `SELECT status FROM posts WHERE id=?`, id).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("post %d: %w", id, repository.ErrNotFound)
		}
		return fmt.Errorf("read post status: %w", err)
	}
	return fmt.Errorf("post %d is %s, expected %s: %w", id, current, from, repository.ErrStaleStatus)
}

func (r *PostRepository) SetArchiveLocation(ctx context.Context, id int64, location string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE posts
SET archive_location=?, updated_at=?
WHERE id=?`,
		location,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("update archive location: %w", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("archive location rows affected: %w", err)
	}
	if aff == 0 {
		return fmt.Errorf("post %d: %w", id, repository.ErrNotFound)
	}
	return nil
}

func (r *PostRepository) DeleteOwned(ctx context.Context, id, authorID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id=? AND author_id=?`, id, authorID)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("post delete rows affected: %w", err)
	}
	if aff == 0 {
		return fmt.Errorf("post %d: %w", id, repository.ErrNotFound)
	}
	return nil
}

func collectPosts(rows *sql.Rows) ([]domain.Post, error) {
	posts := []domain.Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *post)
	}
	return posts, rows.Err()
}

func scanPost(scanner interface {
	Scan(dest ...any) error
}) (*domain.Post, error) {
	var (
		post      domain.Post
		status    string
		createdAt time.Time
		updatedAt time.Time
	)

	if err := scanner.Scan(
		&post.ID,
		&post.AuthorID,
		&post.Title,
		&post.Content,
		&status,
		&post.ErrorMessage,
		&post.ArchiveLocation,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("post: %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan post: %w", err)
	}

	post.Status = domain.PostStatus(status)
	if !post.Status.Valid() {
		return nil, fmt.Errorf("scan post %d: unknown status %q", post.ID, status)
	}
	post.CreatedAt = createdAt.UTC()
	post.UpdatedAt = updatedAt.UTC()
	return &post, nil
}
