package app

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/habitweek/internal/cache"
	"github.com/klokku/habitweek/internal/config"
	"github.com/klokku/habitweek/internal/database"
	"github.com/klokku/habitweek/internal/event_bus"
	"github.com/klokku/habitweek/internal/utils"
	"github.com/klokku/habitweek/pkg/daily_record"
	"github.com/klokku/habitweek/pkg/debrief"
	"github.com/klokku/habitweek/pkg/user"
	"github.com/klokku/habitweek/pkg/weekly_summary"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	EventBus       *event_bus.EventBus
	EventPublisher event_bus.Publisher
	stopForwarding func()
	Transactor     database.Transactor
	RedisClient    *redis.Client
	Clock          utils.Clock

	UserService user.Service
	UserHandler *user.Handler

	DailyRecordRepo    daily_record.Repository
	DailyRecordService *daily_record.ServiceImpl
	DailyRecordHandler *daily_record.Handler

	WeeklySummaryRepo    weekly_summary.Repository
	Aggregator           *weekly_summary.Aggregator
	WeeklySummaryService *weekly_summary.ServiceImpl
	CsvRenderer          *weekly_summary.CsvRendererImpl
	WeeklySummaryHandler *weekly_summary.Handler

	InsightsClient *debrief.ChatCompletionsClient
	DebriefService *debrief.ServiceImpl
	DebriefHandler *debrief.Handler
}

// BuildDependencies initializes and wires all application services and handlers.
func BuildDependencies(db *pgxpool.Pool, cfg config.Application) (*Dependencies, error) {
	deps := &Dependencies{}

	deps.EventBus = event_bus.NewEventBus()
	deps.Transactor = database.NewTransactor(db)
	deps.Clock = &utils.SystemClock{}

	if cfg.Amqp.Url != "" {
		publisher, err := event_bus.NewRabbitMQPublisher(cfg.Amqp.Url, cfg.Amqp.Exchange)
		if err != nil {
			return nil, err
		}
		deps.EventPublisher = publisher
	} else {
		log.Info("AMQP url not configured, events stay in-process")
		deps.EventPublisher = event_bus.NoopPublisher{}
	}
	deps.stopForwarding = event_bus.Forward(deps.EventBus, deps.EventPublisher,
		event_bus.WeeklySummaryRecomputed, event_bus.DebriefInsightsCreated)

	redisClient, err := cache.NewRedisClient(cfg.Redis)
	if err != nil {
		return nil, err
	}
	deps.RedisClient = redisClient

	deps.UserService = user.NewUserService(user.NewUserRepo(db))
	deps.UserHandler = user.NewHandler(deps.UserService)

	deps.DailyRecordRepo = daily_record.NewRepository(db)

	deps.WeeklySummaryRepo = weekly_summary.NewRepository(db)
	if deps.RedisClient != nil {
		deps.WeeklySummaryRepo = weekly_summary.NewCachedRepository(deps.WeeklySummaryRepo, deps.RedisClient, deps.EventBus)
	}
	deps.Aggregator = weekly_summary.NewAggregator(deps.DailyRecordRepo, deps.WeeklySummaryRepo, deps.Clock)
	deps.WeeklySummaryService = weekly_summary.NewService(deps.WeeklySummaryRepo, deps.Aggregator, deps.Transactor, deps.EventBus)

	deps.DailyRecordService = daily_record.NewService(
		deps.DailyRecordRepo, deps.Aggregator, deps.Transactor, deps.EventBus, deps.Clock, cfg.Store)
	deps.DailyRecordHandler = daily_record.NewHandler(deps.DailyRecordService)

	deps.CsvRenderer = weekly_summary.NewCsvRenderer()
	deps.WeeklySummaryHandler = weekly_summary.NewHandler(deps.WeeklySummaryService, deps.DailyRecordService, deps.CsvRenderer)

	deps.InsightsClient = debrief.NewInsightsClient(cfg.Insights)
	deps.DebriefService = debrief.NewService(
		debrief.NewRepository(db), deps.WeeklySummaryRepo, deps.DailyRecordRepo, deps.InsightsClient, deps.EventBus, deps.Clock)
	deps.DebriefHandler = debrief.NewHandler(deps.DebriefService)

	return deps, nil
}

// Close releases the connections opened by BuildDependencies.
func (d *Dependencies) Close() {
	if d.stopForwarding != nil {
		d.stopForwarding()
	}
	if err := d.EventPublisher.Close(); err != nil {
		log.Errorf("failed to close event publisher: %v", err)
	}
	if d.RedisClient != nil {
		if err := d.RedisClient.Close(); err != nil {
			log.Errorf("failed to close redis client: %v", err)
		}
	}
}
