// Package model はドメインモデルを定義する。
package model

import "time"

// ProviderGitHub は現在サポートする唯一の外部IdP。
const ProviderGitHub = "github"

// User はサービス利用ユーザーを表す。
// provider + provider_user_id の組は一意であり、同一の外部アカウントに対して
// 複数のユーザー行が存在することはない（DBのUNIQUE制約で保証する）。
// DisplayNameとAvatarURLは初回ログイン時の値を保持し、再ログインでは更新しない。
type User struct {
	ID             string
	Provider       string
	ProviderUserID string
	DisplayName    string
	AvatarURL      string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
// IDはクライアントへCookieとして渡される不透明な識別子。
// 行が保持するペイロードはユーザーの内部IDのみで、
// 復元時には毎回ユーザー行を読み直す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Post はユーザーが投稿した記事を表す。
// Bodyは保存前にサニタイズ済みのHTML。
type Post struct {
	ID        string
	UserID    string
	Title     string
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
