package weekly_summary

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/habitweek/internal/database"
	"github.com/klokku/habitweek/pkg/daily_record"
	"github.com/klokku/habitweek/pkg/week"
	log "github.com/sirupsen/logrus"
)

type Repository interface {
	Get(ctx context.Context, userId int, weekStart week.Date) (WeeklySummary, error)
	// Save stores the summary, replacing any summary stored for the same week.
	Save(ctx context.Context, userId int, summary WeeklySummary) error
	// List returns the summaries of weeks starting between from and to inclusive, ordered by week start.
	// A nil bound is open.
	List(ctx context.Context, userId int, from *week.Date, to *week.Date) ([]WeeklySummary, error)
	// LockWeek serializes recomputes of the same week until the current transaction ends.
	LockWeek(ctx context.Context, userId int, weekStart week.Date) error
}

type RepositoryImpl struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

const summaryColumns = `week_start, week_end,
	meditate_count, medicate_count, exercise_count, communicate_count, eat_well_count, study_count, rest_count,
	average_weight, base_points, weight_bonus, total_points, completion_percent, days_recorded, updated_at`

func (r *RepositoryImpl) Get(ctx context.Context, userId int, weekStart week.Date) (WeeklySummary, error) {
	query := `SELECT ` + summaryColumns + ` FROM weekly_summary WHERE user_id = $1 AND week_start = $2`
	summary, err := scanSummary(database.Executor(ctx, r.db).QueryRow(ctx, query, userId, weekStart.Time()))
	if errors.Is(err, pgx.ErrNoRows) {
		return WeeklySummary{}, ErrWeeklySummaryNotFound
	}
	if err != nil {
		log.Errorf("failed to get weekly summary: %v", err)
		return WeeklySummary{}, database.StoreError("get weekly summary", err)
	}
	return summary, nil
}

func (r *RepositoryImpl) Save(ctx context.Context, userId int, summary WeeklySummary) error {
	query := `INSERT INTO weekly_summary (user_id, ` + summaryColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
			  ON CONFLICT (user_id, week_start) DO UPDATE SET
			      week_end = EXCLUDED.week_end,
			      meditate_count = EXCLUDED.meditate_count,
			      medicate_count = EXCLUDED.medicate_count,
			      exercise_count = EXCLUDED.exercise_count,
			      communicate_count = EXCLUDED.communicate_count,
			      eat_well_count = EXCLUDED.eat_well_count,
			      study_count = EXCLUDED.study_count,
			      rest_count = EXCLUDED.rest_count,
			      average_weight = EXCLUDED.average_weight,
			      base_points = EXCLUDED.base_points,
			      weight_bonus = EXCLUDED.weight_bonus,
			      total_points = EXCLUDED.total_points,
			      completion_percent = EXCLUDED.completion_percent,
			      days_recorded = EXCLUDED.days_recorded,
			      updated_at = EXCLUDED.updated_at`
	_, err := database.Executor(ctx, r.db).Exec(ctx, query,
		userId,
		summary.WeekStart.Time(),
		summary.WeekEnd.Time(),
		summary.HabitCounts[daily_record.Meditate],
		summary.HabitCounts[daily_record.Medicate],
		summary.HabitCounts[daily_record.Exercise],
		summary.HabitCounts[daily_record.Communicate],
		summary.HabitCounts[daily_record.EatWell],
		summary.HabitCounts[daily_record.Study],
		summary.HabitCounts[daily_record.Rest],
		summary.AverageWeight,
		summary.BasePoints,
		summary.WeightBonus,
		summary.TotalPoints,
		summary.CompletionPercent,
		summary.DaysRecorded,
		summary.UpdatedAt,
	)
	if err != nil {
		log.Errorf("failed to store weekly summary: %v", err)
		return database.StoreError("store weekly summary", err)
	}
	return nil
}

func (r *RepositoryImpl) List(ctx context.Context, userId int, from *week.Date, to *week.Date) ([]WeeklySummary, error) {
	query := `SELECT ` + summaryColumns + ` FROM weekly_summary
			  WHERE user_id = $1
			    AND ($2::date IS NULL OR week_start >= $2)
			    AND ($3::date IS NULL OR week_start <= $3)
			  ORDER BY week_start`
	rows, err := database.Executor(ctx, r.db).Query(ctx, query, userId, dateArg(from), dateArg(to))
	if err != nil {
		log.Errorf("failed to list weekly summaries: %v", err)
		return nil, database.StoreError("list weekly summaries", err)
	}
	defer rows.Close()

	summaries := make([]WeeklySummary, 0)
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, database.StoreError("scan weekly summary", err)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, database.StoreError("list weekly summaries", err)
	}
	return summaries, nil
}

func (r *RepositoryImpl) LockWeek(ctx context.Context, userId int, weekStart week.Date) error {
	daysSinceEpoch := int32(weekStart.Time().Unix() / 86400)
	_, err := database.Executor(ctx, r.db).Exec(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, int32(userId), daysSinceEpoch)
	if err != nil {
		log.Errorf("failed to lock week %s: %v", weekStart, err)
		return database.StoreError("lock week", err)
	}
	return nil
}

func dateArg(d *week.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time()
	return &t
}

func scanSummary(row pgx.Row) (WeeklySummary, error) {
	var summary WeeklySummary
	var weekStart, weekEnd time.Time
	var meditate, medicate, exercise, communicate, eatWell, study, rest int
	err := row.Scan(
		&weekStart,
		&weekEnd,
		&meditate,
		&medicate,
		&exercise,
		&communicate,
		&eatWell,
		&study,
		&rest,
		&summary.AverageWeight,
		&summary.BasePoints,
		&summary.WeightBonus,
		&summary.TotalPoints,
		&summary.CompletionPercent,
		&summary.DaysRecorded,
		&summary.UpdatedAt,
	)
	if err != nil {
		return WeeklySummary{}, err
	}
	summary.WeekStart = week.DateOf(weekStart)
	summary.WeekEnd = week.DateOf(weekEnd)
	summary.HabitCounts = HabitCounts{
		daily_record.Meditate:    meditate,
		daily_record.Medicate:    medicate,
		daily_record.Exercise:    exercise,
		daily_record.Communicate: communicate,
		daily_record.EatWell:     eatWell,
		daily_record.Study:       study,
		daily_record.Rest:        rest,
	}
	return summary, nil
}
