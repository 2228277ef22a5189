// Package repository はデータ永続化のインターフェースと実装を定義する。
package repository

import (
	"context"

	"github.com/hitoshi/appledex/internal/model"
)

// SessionRepository はセッションデータの永続化インターフェース。
// memory / postgres / redis の実装を設定で切り替える。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れまたは存在しない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// VarietyRepository はりんご品種コレクションへのアクセスインターフェース。
// 実体はBaaSにあり、呼び出しごとにユーザーのベアラートークンを渡す。
type VarietyRepository interface {
	// List は現在のユーザーの品種を作成日時の降順で、ownerを展開して返す。
	List(ctx context.Context, token string) ([]model.AppleVariety, error)
	// Create は品種を作成する。
	Create(ctx context.Context, token string, form model.VarietyForm) (*model.AppleVariety, error)
	// Update は指定IDの品種を更新する。
	Update(ctx context.Context, token, id string, form model.VarietyForm) (*model.AppleVariety, error)
	// Delete は指定IDの品種を削除する。
	Delete(ctx context.Context, token, id string) error
}
