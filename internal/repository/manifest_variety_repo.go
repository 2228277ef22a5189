package repository

import (
	"context"
	"fmt"

	"github.com/hitoshi/appledex/internal/manifest"
	"github.com/hitoshi/appledex/internal/model"
)

// VarietiesCollection は品種コレクションのスラッグ。
const VarietiesCollection = "appleVarieties"

// ManifestVarietyRepo はManifest BaaSのコレクションを使用した品種リポジトリ。
type ManifestVarietyRepo struct {
	client *manifest.Client
}

// NewManifestVarietyRepo はManifestVarietyRepoを生成する。
func NewManifestVarietyRepo(client *manifest.Client) *ManifestVarietyRepo {
	return &ManifestVarietyRepo{client: client}
}

// listOptions は一覧取得の条件。作成日時の降順、ownerを展開する。
var listOptions = manifest.FindOptions{
	OrderBy:   "createdAt",
	Desc:      true,
	Relations: []string{"owner"},
}

// List は現在のユーザーの品種一覧を返す。
func (r *ManifestVarietyRepo) List(ctx context.Context, token string) ([]model.AppleVariety, error) {
	varieties := []model.AppleVariety{}
	if err := r.client.From(VarietiesCollection).Find(ctx, token, listOptions, &varieties); err != nil {
		return nil, fmt.Errorf("failed to list varieties: %w", err)
	}
	return varieties, nil
}

// Create は品種を作成する。
func (r *ManifestVarietyRepo) Create(ctx context.Context, token string, form model.VarietyForm) (*model.AppleVariety, error) {
	var v model.AppleVariety
	if err := r.client.From(VarietiesCollection).Create(ctx, token, form.Fields(), &v); err != nil {
		return nil, fmt.Errorf("failed to create variety: %w", err)
	}
	return &v, nil
}

// Update は指定IDの品種を更新する。
func (r *ManifestVarietyRepo) Update(ctx context.Context, token, id string, form model.VarietyForm) (*model.AppleVariety, error) {
	var v model.AppleVariety
	if err := r.client.From(VarietiesCollection).Update(ctx, token, id, form.Fields(), &v); err != nil {
		return nil, fmt.Errorf("failed to update variety %s: %w", id, err)
	}
	return &v, nil
}

// Delete は指定IDの品種を削除する。
func (r *ManifestVarietyRepo) Delete(ctx context.Context, token, id string) error {
	if err := r.client.From(VarietiesCollection).Delete(ctx, token, id); err != nil {
		return fmt.Errorf("failed to delete variety %s: %w", id, err)
	}
	return nil
}

// compile-time interface check
var _ VarietyRepository = (*ManifestVarietyRepo)(nil)
