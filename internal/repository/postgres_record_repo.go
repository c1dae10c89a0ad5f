package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/prmconsole/internal/model"
)

// PostgresRecordRepo はPostgreSQLを使用したPRMレコードリポジトリ。
// 全コレクションを1テーブルに格納し、コレクション固有項目はJSONBで保持する。
type PostgresRecordRepo struct {
	db *sql.DB
}

// NewPostgresRecordRepo はPostgresRecordRepoを生成する。
func NewPostgresRecordRepo(db *sql.DB) *PostgresRecordRepo {
	return &PostgresRecordRepo{db: db}
}

const selectRecordColumns = `SELECT id, collection, owner_id, name, status, data, active, created_at, updated_at FROM records`

// List は所有者のコレクション内レコードを作成日時の降順で返す。
func (r *PostgresRecordRepo) List(ctx context.Context, ownerID string, collection model.Collection, includeInactive bool) ([]*model.Record, error) {
	query := selectRecordColumns + ` WHERE owner_id = $1 AND collection = $2`
	if !includeInactive {
		query += ` AND active = true`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, ownerID, string(collection))
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	records := []*model.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return records, nil
}

// FindByID は所有者のレコードを取得する。見つからない場合はnilを返す。
func (r *PostgresRecordRepo) FindByID(ctx context.Context, ownerID string, collection model.Collection, id string) (*model.Record, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx,
		selectRecordColumns+` WHERE id = $1 AND owner_id = $2 AND collection = $3`,
		id, ownerID, string(collection),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find record: %w", err)
	}
	return rec, nil
}

// Create はレコードを作成する。
func (r *PostgresRecordRepo) Create(ctx context.Context, rec *model.Record) error {
	data, err := marshalData(rec.Data)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO records (id, collection, owner_id, name, status, data, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, string(rec.Collection), rec.OwnerID, rec.Name, rec.Status, data, rec.Active, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}
	return nil
}

// Update はレコードの名前・ステータス・データを更新する。
// 対象が存在しない場合はfalseを返す。
func (r *PostgresRecordRepo) Update(ctx context.Context, rec *model.Record) (bool, error) {
	data, err := marshalData(rec.Data)
	if err != nil {
		return false, err
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE records SET name = $4, status = $5, data = $6, updated_at = $7
		 WHERE id = $1 AND owner_id = $2 AND collection = $3`,
		rec.ID, rec.OwnerID, string(rec.Collection), rec.Name, rec.Status, data, rec.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update record: %w", err)
	}
	return affected(result)
}

// Deactivate はレコードを無効化する。物理削除は行わない。
func (r *PostgresRecordRepo) Deactivate(ctx context.Context, ownerID string, collection model.Collection, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE records SET active = false, updated_at = now()
		 WHERE id = $1 AND owner_id = $2 AND collection = $3`,
		id, ownerID, string(collection),
	)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate record: %w", err)
	}
	return affected(result)
}

func scanRecord(row rowScanner) (*model.Record, error) {
	rec := &model.Record{}
	var collection string
	var data []byte
	err := row.Scan(&rec.ID, &collection, &rec.OwnerID, &rec.Name, &rec.Status, &data, &rec.Active, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Collection = model.Collection(collection)
	rec.Data = map[string]any{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &rec.Data); err != nil {
			return nil, fmt.Errorf("failed to decode record data: %w", err)
		}
	}
	return rec, nil
}

func marshalData(data map[string]any) ([]byte, error) {
	if data == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record data: %w", err)
	}
	return b, nil
}

func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// compile-time interface check
var _ RecordRepository = (*PostgresRecordRepo)(nil)
