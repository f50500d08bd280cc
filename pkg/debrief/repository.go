package debrief

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
	Get(ctx context.Context, userId int, weekStart week.Date) (Debrief, error)
	// SaveReflection replaces the reflection text of the week and keeps stored insights.
	SaveReflection(ctx context.Context, userId int, weekStart week.Date, reflection Reflection) (Debrief, error)
	SaveInsights(ctx context.Context, userId int, weekStart week.Date, insights string, generatedAt time.Time) (Debrief, error)
}

type RepositoryImpl struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

const debriefColumns = `week_start, went_well, to_improve, next_focus, insights, insights_generated_at`

func (r *RepositoryImpl) Get(ctx context.Context, userId int, weekStart week.Date) (Debrief, error) {
	query := `SELECT ` + debriefColumns + ` FROM weekly_debrief WHERE user_id = $1 AND week_start = $2`
	debrief, err := scanDebrief(database.Executor(ctx, r.db).QueryRow(ctx, query, userId, weekStart.Time()))
	if errors.Is(err, pgx.ErrNoRows) {
		return Debrief{}, ErrDebriefNotFound
	}
	if err != nil {
		log.Errorf("failed to get debrief: %v", err)
		return Debrief{}, database.StoreError("get debrief", err)
	}
	return debrief, nil
}

func (r *RepositoryImpl) SaveReflection(ctx context.Context, userId int, weekStart week.Date, reflection Reflection) (Debrief, error) {
	query := `INSERT INTO weekly_debrief (user_id, week_start, went_well, to_improve, next_focus)
			  VALUES ($1, $2, $3, $4, $5)
			  ON CONFLICT (user_id, week_start) DO UPDATE SET
			      went_well = EXCLUDED.went_well,
			      to_improve = EXCLUDED.to_improve,
			      next_focus = EXCLUDED.next_focus
			  RETURNING ` + debriefColumns
	debrief, err := scanDebrief(database.Executor(ctx, r.db).QueryRow(ctx, query,
		userId, weekStart.Time(), reflection.WentWell, reflection.ToImprove, reflection.NextFocus))
	if err != nil {
		log.Errorf("failed to store debrief reflection: %v", err)
		return Debrief{}, database.StoreError("store debrief reflection", err)
	}
	return debrief, nil
}

func (r *RepositoryImpl) SaveInsights(ctx context.Context, userId int, weekStart week.Date, insights string, generatedAt time.Time) (Debrief, error) {
	query := `INSERT INTO weekly_debrief (user_id, week_start, insights, insights_generated_at)
			  VALUES ($1, $2, $3, $4)
			  ON CONFLICT (user_id, week_start) DO UPDATE SET
			      insights = EXCLUDED.insights,
			      insights_generated_at = EXCLUDED.insights_generated_at
			  RETURNING ` + debriefColumns
	debrief, err := scanDebrief(database.Executor(ctx, r.db).QueryRow(ctx, query,
		userId, weekStart.Time(), insights, generatedAt))
	if err != nil {
		log.Errorf("failed to store debrief insights: %v", err)
		return Debrief{}, database.StoreError("store debrief insights", err)
	}
	return debrief, nil
}

func scanDebrief(row pgx.Row) (Debrief, error) {
	var debrief Debrief
	var weekStart time.Time
	err := row.Scan(
		&weekStart,
		&debrief.WentWell,
		&debrief.ToImprove,
		&debrief.NextFocus,
		&debrief.Insights,
		&debrief.InsightsGeneratedAt,
	)
	if err != nil {
		return Debrief{}, err
	}
	debrief.WeekStart = week.DateOf(weekStart)
	return debrief, nil
}
