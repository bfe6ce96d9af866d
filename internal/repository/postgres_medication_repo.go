package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/healscope/internal/model"
)

// PostgresMedicationRepo はPostgreSQLを使用した服薬情報リポジトリ。
type PostgresMedicationRepo struct {
	db *sql.DB
}

// NewPostgresMedicationRepo はPostgresMedicationRepoを生成する。
func NewPostgresMedicationRepo(db *sql.DB) *PostgresMedicationRepo {
	return &PostgresMedicationRepo{db: db}
}

const medicationColumns = `id, user_id, name, dosage, frequency, reminder_times,
	start_date, end_date, notes, status, created_at, updated_at`

func scanMedication(row interface{ Scan(...any) error }) (*model.Medication, error) {
	m := &model.Medication{}
	var reminders pq.StringArray
	var start, end sql.NullTime

	if err := row.Scan(&m.ID, &m.UserID, &m.Name, &m.Dosage, &m.Frequency, &reminders,
		&start, &end, &m.Notes, &m.Status, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}

	m.ReminderTimes = []string(reminders)
	if m.ReminderTimes == nil {
		m.ReminderTimes = []string{}
	}
	m.StartDate = nullTimePtr(start)
	m.EndDate = nullTimePtr(end)
	return m, nil
}

// nullTimePtr はsql.NullTimeを*time.Timeに変換する。
func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// reminderArray はnilのスライスを空配列として書き込む。
func reminderArray(times []string) interface{} {
	if times == nil {
		times = []string{}
	}
	return pq.Array(times)
}

// Create は服薬情報を作成する。
func (r *PostgresMedicationRepo) Create(ctx context.Context, m *model.Medication) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO medications (`+medicationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		m.ID, m.UserID, m.Name, m.Dosage, m.Frequency, reminderArray(m.ReminderTimes),
		m.StartDate, m.EndDate, m.Notes, m.Status, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("服薬情報の作成に失敗しました: %w", err)
	}
	return nil
}

// ListByUser はユーザーの服薬情報を新しい順に返す。
func (r *PostgresMedicationRepo) ListByUser(ctx context.Context, userID string) ([]*model.Medication, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+medicationColumns+` FROM medications
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("服薬情報一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	meds := []*model.Medication{}
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, fmt.Errorf("服薬情報の読み取りに失敗しました: %w", err)
		}
		meds = append(meds, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("服薬情報一覧の走査に失敗しました: %w", err)
	}
	return meds, nil
}

// FindByIDAndUser は所有者が一致する服薬情報を取得する。見つからない場合はnilを返す。
func (r *PostgresMedicationRepo) FindByIDAndUser(ctx context.Context, id, userID string) (*model.Medication, error) {
	m, err := scanMedication(r.db.QueryRowContext(ctx,
		`SELECT `+medicationColumns+` FROM medications WHERE id = $1 AND user_id = $2`,
		id, userID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("服薬情報の取得に失敗しました: %w", err)
	}
	return m, nil
}

// Update は所有者が一致する服薬情報を更新する。
func (r *PostgresMedicationRepo) Update(ctx context.Context, m *model.Medication) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE medications SET
		    name = $3, dosage = $4, frequency = $5, reminder_times = $6,
		    start_date = $7, end_date = $8, notes = $9, status = $10, updated_at = $11
		 WHERE id = $1 AND user_id = $2`,
		m.ID, m.UserID, m.Name, m.Dosage, m.Frequency, reminderArray(m.ReminderTimes),
		m.StartDate, m.EndDate, m.Notes, m.Status, m.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("服薬情報の更新に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	return n > 0, nil
}

// DeleteByIDAndUser は所有者が一致する服薬情報を削除する。
func (r *PostgresMedicationRepo) DeleteByIDAndUser(ctx context.Context, id, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM medications WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("服薬情報の削除に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n > 0, nil
}

// compile-time interface check
var _ MedicationRepository = (*PostgresMedicationRepo)(nil)
