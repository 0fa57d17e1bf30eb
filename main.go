package main

import (
	"SurveyBot/config"
	"SurveyBot/handler"
	"SurveyBot/metrics"
	"SurveyBot/model"
	"SurveyBot/relay"
	"SurveyBot/repo"
	"SurveyBot/store"
	"SurveyBot/survey"
	"SurveyBot/transport"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.FromEnv()
	logger := newLogger(cfg, os.Stderr)
	log.Logger = logger

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		log.Fatal().Err(err).Msg("bot stopped with error")
	}
	log.Info().Msg("Bot stopped")
}

// transportRunner is the inbound loop of a transport. It returns once ctx ends.
type transportRunner func(ctx context.Context) error

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	questionnaire, err := config.LoadQuestionnaire(cfg.QuestionnairePath)
	if err != nil {
		return err
	}

	conversations, err := openConversationLog(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := conversations.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing conversation log")
		}
	}()

	recorder := metrics.NewRecorder()
	httpServer := metrics.NewServer(cfg.HTTPAddr, recorder, logger.With().Str("component", "http").Logger())
	access := store.NewAccessPolicy(cfg.ReviewerIDs, cfg.SingleUseRetake)

	messenger, runTransport, err := newTransport(ctx, cfg, questionnaire.Messages, httpServer, logger)
	if err != nil {
		return err
	}

	router, err := relay.NewRouter(relay.Deps{
		Access:    access,
		Pending:   store.NewPendingReplies(),
		Log:       conversations,
		Messenger: messenger,
		Texts:     questionnaire.Messages,
		Metrics:   recorder,
	})
	if err != nil {
		return err
	}
	engine, err := survey.NewEngine(survey.Deps{
		Questionnaire: questionnaire,
		Sessions:      store.NewSessionTable(),
		Access:        access,
		Log:           conversations,
		Messenger:     messenger,
		Notifier:      router,
		ContactURL:    messenger.ContactURL(cfg.Contact()),
		Metrics:       recorder,
	})
	if err != nil {
		return err
	}
	dispatcher, err := handler.NewDispatcher(handler.Deps{
		Engine:       engine,
		Router:       router,
		Access:       access,
		Metrics:      recorder,
		Logger:       logger,
		EventTimeout: cfg.EventTimeout,
	})
	if err != nil {
		return err
	}
	messenger.SetHandler(dispatcher)

	if err := httpServer.Start(ctx); err != nil {
		return err
	}
	logger.Info().
		Str("transport", cfg.Transport).
		Str("log_driver", cfg.LogDriver).
		Int("questions", engine.QuestionCount()).
		Ints64("reviewers", access.Reviewers()).
		Msg("survey bot started")

	runErr := runTransport(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	dispatcher.Wait()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("stopping http server")
	}
	return runErr
}

// messengerTransport is what run needs from a chat adapter.
type messengerTransport interface {
	model.Messenger
	SetHandler(transport.EventHandler)
	ContactURL(reviewer model.Sender) string
}

func newTransport(ctx context.Context, cfg config.Config, texts model.Messages, httpServer *metrics.Server, logger zerolog.Logger) (messengerTransport, transportRunner, error) {
	switch cfg.Transport {
	case config.TransportDiscord:
		d, err := transport.NewDiscord(cfg.DiscordToken, nil, logger.With().Str("component", "discord").Logger())
		if err != nil {
			return nil, nil, err
		}
		return d, d.Run, nil
	}

	tgLogger := logger.With().Str("component", "telegram").Logger()
	var opts []bot.Option
	if cfg.WebhookURL != "" && cfg.WebhookSecret != "" {
		opts = append(opts, bot.WithWebhookSecretToken(cfg.WebhookSecret))
	}
	tg, err := transport.NewTelegram(cfg.TelegramToken, nil, tgLogger, opts...)
	if err != nil {
		return nil, nil, err
	}
	if err := tg.RegisterCommands(ctx, texts); err != nil {
		tgLogger.Warn().Err(err).Msg("could not register bot commands")
	}

	if cfg.WebhookURL == "" {
		return tg, func(ctx context.Context) error {
			tg.RunPolling(ctx)
			return nil
		}, nil
	}

	webhook, err := tg.WebhookHandler(ctx, cfg.WebhookURL, cfg.WebhookSecret)
	if err != nil {
		return nil, nil, err
	}
	httpServer.Handle(cfg.WebhookPath(), webhook)
	return tg, func(ctx context.Context) error {
		tg.RunWebhook(ctx)
		return nil
	}, nil
}

func openConversationLog(ctx context.Context, cfg config.Config) (repo.ConversationLog, error) {
	switch cfg.LogDriver {
	case config.LogDriverFirebase:
		l, err := repo.NewFirebaseLog(ctx, cfg.FirebaseKeyPath, cfg.FirebaseDatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("error creating Firebase connector: %w", err)
		}
		return l, nil
	default:
		l, err := repo.NewGormLog(cfg.LogDriver, cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("open conversation log: %w", err)
		}
		return l, nil
	}
}

func newLogger(cfg config.Config, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if cfg.LogFormat != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("service", "surveybot").Logger()
}
