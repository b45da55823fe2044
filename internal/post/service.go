// Package post は投稿に関するビジネスロジックを提供する。
package post

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/kakimono/internal/model"
	"github.com/hitoshi/kakimono/internal/repository"
	"github.com/hitoshi/kakimono/internal/security"
)

// maxTitleLength はタイトルの最大文字数。
const maxTitleLength = 200

// defaultListLimit は投稿一覧の1回の取得件数（デフォルト）。
const defaultListLimit = 50

// Input は投稿の作成・更新リクエストの内容を表す。
type Input struct {
	Title string
	Body  string
}

// ListResult は投稿一覧の取得結果を表す。
type ListResult struct {
	Posts      []*model.Post
	NextCursor string
	HasMore    bool
}

// Service は投稿のCRUDと所有権チェックを提供する。
// 本文HTMLは保存前にサニタイズされる。
type Service struct {
	postRepo  repository.PostRepository
	sanitizer security.ContentSanitizerService
}

// NewService はServiceを生成する。
func NewService(postRepo repository.PostRepository, sanitizer security.ContentSanitizerService) *Service {
	return &Service{
		postRepo:  postRepo,
		sanitizer: sanitizer,
	}
}

// Create は投稿を作成する。
func (s *Service) Create(ctx context.Context, userID string, input Input) (*model.Post, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	now := time.Now()
	post := &model.Post{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     strings.TrimSpace(input.Title),
		Body:      s.sanitizer.Sanitize(input.Body),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	return post, nil
}

// Get は投稿を取得する。
func (s *Service) Get(ctx context.Context, postID string) (*model.Post, error) {
	post, err := s.postRepo.FindByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to find post: %w", err)
	}
	if post == nil {
		return nil, model.NewPostNotFoundError(postID)
	}
	return post, nil
}

// List はユーザーの投稿一覧をcreated_at降順のカーソルページネーションで返す。
// cursorは前ページ最終投稿のcreated_at（RFC3339Nano）。空なら先頭から。
func (s *Service) List(ctx context.Context, userID, cursor string, limit int) (*ListResult, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	var cursorTime time.Time
	if cursor != "" {
		t, err := time.Parse(time.RFC3339Nano, cursor)
		if err != nil {
			return nil, model.NewInvalidPostError("カーソルの形式が不正です")
		}
		cursorTime = t
	}

	// HasMore判定のため1件多めに取得する
	posts, err := s.postRepo.ListByUserID(ctx, userID, cursorTime, limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}

	result := &ListResult{Posts: posts}
	if len(posts) > limit {
		result.Posts = posts[:limit]
		result.HasMore = true
		result.NextCursor = result.Posts[limit-1].CreatedAt.Format(time.RFC3339Nano)
	}

	return result, nil
}

// Update は投稿のタイトルと本文を更新する。
// 投稿の所有者以外による更新は拒否する。
func (s *Service) Update(ctx context.Context, userID, postID string, input Input) (*model.Post, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	post, err := s.postRepo.FindByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to find post: %w", err)
	}
	if post == nil {
		return nil, model.NewPostNotFoundError(postID)
	}
	if post.UserID != userID {
		return nil, model.NewPostForbiddenError(postID)
	}

	post.Title = strings.TrimSpace(input.Title)
	post.Body = s.sanitizer.Sanitize(input.Body)
	post.UpdatedAt = time.Now()

	if err := s.postRepo.Update(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to update post: %w", err)
	}

	return post, nil
}

// Delete は投稿を削除する。
// 投稿の所有者以外による削除は拒否する。
func (s *Service) Delete(ctx context.Context, userID, postID string) error {
	post, err := s.postRepo.FindByID(ctx, postID)
	if err != nil {
		return fmt.Errorf("failed to find post: %w", err)
	}
	if post == nil {
		return model.NewPostNotFoundError(postID)
	}
	if post.UserID != userID {
		return model.NewPostForbiddenError(postID)
	}

	if err := s.postRepo.Delete(ctx, postID); err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}

	return nil
}

// validateInput は投稿入力のバリデーションを行う。
func validateInput(input Input) error {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return model.NewInvalidPostError("タイトルは必須です")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return model.NewInvalidPostError(fmt.Sprintf("タイトルは%d文字以内で入力してください", maxTitleLength))
	}
	if strings.TrimSpace(input.Body) == "" {
		return model.NewInvalidPostError("本文は必須です")
	}
	return nil
}
