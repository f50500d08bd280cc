package daily_record

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/habitweek/internal/database"
	"github.com/klokku/habitweek/pkg/week"
	log "github.com/sirupsen/logrus"
)

type Repository interface {
	Get(ctx context.Context, userId int, date week.Date) (DailyRecord, error)
	// Upsert stores the record, replacing any record stored for the same date.
	Upsert(ctx context.Context, userId int, record DailyRecord) (DailyRecord, error)
	// Delete removes the record of the date. Deleting a missing record is not an error.
	Delete(ctx context.Context, userId int, date week.Date) error
	// ListRange returns the stored records between from and to inclusive, ordered by date.
	ListRange(ctx context.Context, userId int, from week.Date, to week.Date) ([]DailyRecord, error)
}

type RepositoryImpl struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

const recordColumns = `date, weight, meditate, medicate, exercise, communicate, eat_well, study, rest, mood, note`

func (r *RepositoryImpl) Get(ctx context.Context, userId int, date week.Date) (DailyRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM daily_record WHERE user_id = $1 AND date = $2`
	record, err := scanRecord(database.Executor(ctx, r.db).QueryRow(ctx, query, userId, date.Time()))
	if errors.Is(err, pgx.ErrNoRows) {
		return DailyRecord{}, ErrDailyRecordNotFound
	}
	if err != nil {
		log.Errorf("failed to get daily record: %v", err)
		return DailyRecord{}, database.StoreError("get daily record", err)
	}
	return record, nil
}

func (r *RepositoryImpl) Upsert(ctx context.Context, userId int, record DailyRecord) (DailyRecord, error) {
	query := `INSERT INTO daily_record (user_id, ` + recordColumns + `, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			  ON CONFLICT (user_id, date) DO UPDATE SET
			      weight = EXCLUDED.weight,
			      meditate = EXCLUDED.meditate,
			      medicate = EXCLUDED.medicate,
			      exercise = EXCLUDED.exercise,
			      communicate = EXCLUDED.communicate,
			      eat_well = EXCLUDED.eat_well,
			      study = EXCLUDED.study,
			      rest = EXCLUDED.rest,
			      mood = EXCLUDED.mood,
			      note = EXCLUDED.note,
			      updated_at = EXCLUDED.updated_at
			  RETURNING ` + recordColumns
	var mood *string
	if record.Mood != nil {
		m := string(*record.Mood)
		mood = &m
	}
	stored, err := scanRecord(database.Executor(ctx, r.db).QueryRow(ctx, query,
		userId,
		record.Date.Time(),
		record.Weight,
		record.Habits.Meditate,
		record.Habits.Medicate,
		record.Habits.Exercise,
		record.Habits.Communicate,
		record.Habits.EatWell,
		record.Habits.Study,
		record.Habits.Rest,
		mood,
		record.Note,
		time.Now(),
	))
	if err != nil {
		log.Errorf("failed to store daily record: %v", err)
		return DailyRecord{}, database.StoreError("store daily record", err)
	}
	return stored, nil
}

func (r *RepositoryImpl) Delete(ctx context.Context, userId int, date week.Date) error {
	query := `DELETE FROM daily_record WHERE user_id = $1 AND date = $2`
	result, err := database.Executor(ctx, r.db).Exec(ctx, query, userId, date.Time())
	if err != nil {
		log.Errorf("failed to delete daily record: %v", err)
		return database.StoreError("delete daily record", err)
	}
	log.Debugf("deleted %d daily record(s) for %s", result.RowsAffected(), date)
	return nil
}

func (r *RepositoryImpl) ListRange(ctx context.Context, userId int, from week.Date, to week.Date) ([]DailyRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM daily_record
			  WHERE user_id = $1 AND date >= $2 AND date <= $3
			  ORDER BY date`
	rows, err := database.Executor(ctx, r.db).Query(ctx, query, userId, from.Time(), to.Time())
	if err != nil {
		log.Errorf("failed to list daily records: %v", err)
		return nil, database.StoreError("list daily records", err)
	}
	defer rows.Close()

	var records []DailyRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, database.StoreError("scan daily record", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, database.StoreError("list daily records", err)
	}
	return records, nil
}

func scanRecord(row pgx.Row) (DailyRecord, error) {
	var record DailyRecord
	var date time.Time
	var mood *string
	err := row.Scan(
		&date,
		&record.Weight,
		&record.Habits.Meditate,
		&record.Habits.Medicate,
		&record.Habits.Exercise,
		&record.Habits.Communicate,
		&record.Habits.EatWell,
		&record.Habits.Study,
		&record.Habits.Rest,
		&mood,
		&record.Note,
	)
	if err != nil {
		return DailyRecord{}, err
	}
	record.Date = week.DateOf(date)
	if mood != nil {
		m := Mood(*mood)
		record.Mood = &m
	}
	return record, nil
}
