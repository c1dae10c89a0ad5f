// Package record はPRMコレクション（パートナー・商談・通知など）のレコード操作を提供する。
package record

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hitoshi/prmconsole/internal/model"
	"github.com/hitoshi/prmconsole/internal/repository"
	"github.com/hitoshi/prmconsole/internal/security"
)

const maxNameLength = 255

// Input はレコード作成・更新の入力。
// 更新時にnilの項目は変更しない。
type Input struct {
	Name   *string
	Status *string
	Data   map[string]any
}

// Service はレコードのサービス層。全操作は所有者IDでスコープされる。
type Service struct {
	repo      repository.RecordRepository
	sanitizer security.TextSanitizer
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.RecordRepository, sanitizer security.TextSanitizer) *Service {
	return &Service{repo: repo, sanitizer: sanitizer, now: time.Now}
}

// List はコレクション内の自分のレコードを返す。
func (s *Service) List(ctx context.Context, ownerID, collection string, includeInactive bool) ([]*model.Record, error) {
	c, err := parseCollection(collection)
	if err != nil {
		return nil, err
	}
	records, err := s.repo.List(ctx, ownerID, c, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return records, nil
}

// Get は自分のレコードを1件返す。
func (s *Service) Get(ctx context.Context, ownerID, collection, id string) (*model.Record, error) {
	c, err := parseCollection(collection)
	if err != nil {
		return nil, err
	}
	if uuid.Validate(id) != nil {
		return nil, model.NewRecordNotFoundError(id)
	}
	rec, err := s.repo.FindByID(ctx, ownerID, c, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	if rec == nil {
		return nil, model.NewRecordNotFoundError(id)
	}
	return rec, nil
}

// Create はレコードを作成する。ステータス未指定時はコレクションの既定値を使う。
func (s *Service) Create(ctx context.Context, ownerID, collection string, in Input) (*model.Record, error) {
	c, err := parseCollection(collection)
	if err != nil {
		return nil, err
	}
	if in.Name == nil {
		return nil, model.NewInvalidRecordError("name is required")
	}
	name, err := s.cleanName(*in.Name)
	if err != nil {
		return nil, err
	}

	status := c.DefaultStatus()
	if in.Status != nil && *in.Status != "" {
		status = *in.Status
	}
	if !c.AllowsStatus(status) {
		return nil, model.NewInvalidStatusError(c, status)
	}

	data := security.SanitizeData(s.sanitizer, in.Data)
	if data == nil {
		data = map[string]any{}
	}

	now := s.now()
	rec := &model.Record{
		ID:         uuid.New().String(),
		Collection: c,
		OwnerID:    ownerID,
		Name:       name,
		Status:     status,
		Data:       data,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create record: %w", err)
	}

	slog.Info("record created",
		slog.String("collection", string(c)),
		slog.String("record_id", rec.ID),
		slog.String("owner_id", ownerID),
	)
	return rec, nil
}

// Update は自分のレコードを更新する。Dataは指定されたキーのみ上書きする。
func (s *Service) Update(ctx context.Context, ownerID, collection, id string, in Input) (*model.Record, error) {
	rec, err := s.Get(ctx, ownerID, collection, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name, err := s.cleanName(*in.Name)
		if err != nil {
			return nil, err
		}
		rec.Name = name
	}
	if in.Status != nil {
		if !rec.Collection.AllowsStatus(*in.Status) {
			return nil, model.NewInvalidStatusError(rec.Collection, *in.Status)
		}
		rec.Status = *in.Status
	}
	if in.Data != nil {
		if rec.Data == nil {
			rec.Data = map[string]any{}
		}
		for k, v := range security.SanitizeData(s.sanitizer, in.Data) {
			if v == nil {
				delete(rec.Data, k)
				continue
			}
			rec.Data[k] = v
		}
	}

	rec.UpdatedAt = s.now()
	ok, err := s.repo.Update(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to update record: %w", err)
	}
	if !ok {
		return nil, model.NewRecordNotFoundError(id)
	}
	return rec, nil
}

// Deactivate はレコードを無効化する。レコードは削除しない。
func (s *Service) Deactivate(ctx context.Context, ownerID, collection, id string) error {
	c, err := parseCollection(collection)
	if err != nil {
		return err
	}
	if uuid.Validate(id) != nil {
		return model.NewRecordNotFoundError(id)
	}
	ok, err := s.repo.Deactivate(ctx, ownerID, c, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate record: %w", err)
	}
	if !ok {
		return model.NewRecordNotFoundError(id)
	}

	slog.Info("record deactivated",
		slog.String("collection", string(c)),
		slog.String("record_id", id),
		slog.String("owner_id", ownerID),
	)
	return nil
}

func (s *Service) cleanName(raw string) (string, error) {
	name := s.sanitizer.StripTags(raw)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return "", model.NewInvalidRecordError(fmt.Sprintf("name must be 1-%d characters", maxNameLength))
	}
	return name, nil
}

func parseCollection(raw string) (model.Collection, error) {
	c := model.Collection(raw)
	if !c.Valid() {
		return "", model.NewInvalidCollectionError(raw)
	}
	return c, nil
}
