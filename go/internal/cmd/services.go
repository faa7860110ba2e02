package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/huroof/go/internal/assets"
	"github.com/mcdev12/huroof/go/internal/buzzer"
	"github.com/mcdev12/huroof/go/internal/codes"
	"github.com/mcdev12/huroof/go/internal/config"
	"github.com/mcdev12/huroof/go/internal/events"
	"github.com/mcdev12/huroof/go/internal/gateway"
	"github.com/mcdev12/huroof/go/internal/models"
	"github.com/mcdev12/huroof/go/internal/questions"
	"github.com/mcdev12/huroof/go/internal/session"
	"github.com/mcdev12/huroof/go/internal/storage"
	"github.com/mcdev12/huroof/go/internal/token"
)

type Services struct {
	Store   *session.Store
	Gateway *gateway.Service
	Reaper  *session.Reaper

	sink      *events.Sink
	publisher *events.JetStreamPublisher
}

func setupServices(ctx context.Context, cfg *config.Config, db *storage.DB) (*Services, error) {
	// Wire up dependency injection chain
	// Database layer → Repository layer → Domain layer → Gateway
	clock := clockwork.NewRealClock()

	var (
		sessionRepo  session.Repository
		tokenRepo    token.Repository
		questionRepo questions.Repository
		codeQuerier  codes.Querier
	)
	general, err := loadQuestionPool(cfg.Questions)
	if err != nil {
		return nil, err
	}
	if db != nil {
		sessionRepo = session.NewSQLRepository(db)
		tokenRepo = token.NewSQLRepository(db)
		sqlQuestions := questions.NewSQLRepository(db)
		if _, err := sqlQuestions.SeedGeneral(ctx, general); err != nil {
			log.Warn().Err(err).Msg("failed to seed general questions")
		}
		questionRepo = sqlQuestions
		codeQuerier = codes.NewRepository(db)
	} else {
		sessionRepo = session.NewMemoryRepository()
		tokenRepo = token.NewMemoryRepository()
		questionRepo = questions.NewMemoryRepository(general)
		codeQuerier = devCodes(cfg.Codes)
	}

	// Questions
	bank := questions.NewBank(questionRepo, clock)

	// Sessions
	store := session.NewStore(sessionRepo, bank, clock, session.Config{
		SaveTimeout:    cfg.Session.SaveTimeout,
		IdleEvictAfter: cfg.Session.IdleEvictAfter,
		Retention:      cfg.Session.Retention,
	})

	// Tokens and codes
	authority := token.NewAuthority(tokenRepo, clock, cfg.Session.TokenTTL)
	validator := codes.NewValidator(codeQuerier, cfg.Codes.SpecialPrefix)

	// Buzzer
	arbiter := buzzer.NewArbiter(clock, buzzer.Timing{
		WarnAfter:    cfg.Buzzer.WarnAfter,
		ReleaseAfter: cfg.Buzzer.ReleaseAfter,
	})

	services := &Services{Store: store}

	// Event stream
	var sink gateway.EventSink
	if cfg.Events.NATSURL != "" {
		jsCfg := events.DefaultStreamConfig()
		jsCfg.URL = cfg.Events.NATSURL
		publisher, err := events.NewJetStreamPublisher(ctx, jsCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect event stream: %w", err)
		}
		sinkCfg := events.DefaultSinkConfig()
		sinkCfg.QueueSize = cfg.Events.QueueSize
		services.publisher = publisher
		services.sink = events.NewSink(publisher, clock, sinkCfg)
		sink = services.sink
	}

	// Gateway
	gatewayCfg := gateway.DefaultConfig()
	gatewayCfg.Liveness = gateway.LivenessConfig{
		PingInterval:    cfg.Liveness.PingInterval,
		ContestantGrace: cfg.Liveness.ContestantGrace,
		HostGrace:       cfg.Liveness.HostGrace,
	}
	gatewayCfg.WarningMessage = cfg.Buzzer.WarningMessage
	gatewayCfg.PublicURL = cfg.Server.PublicURL
	services.Gateway = gateway.NewService(gatewayCfg, gateway.HubDeps{
		Store:     store,
		Arbiter:   arbiter,
		Tokens:    authority,
		Codes:     validator,
		Questions: bank,
		Clock:     clock,
	}, sink)

	// Retention
	services.Reaper = session.NewReaper(clock, cfg.Session.ReapInterval)
	services.Reaper.Add("sessions", store)
	services.Reaper.Add("tokens", authority)

	return services, nil
}

func loadQuestionPool(cfg config.Questions) (models.QuestionPool, error) {
	data := assets.Questions
	if cfg.SeedFile != "" {
		var err error
		if data, err = os.ReadFile(cfg.SeedFile); err != nil {
			return nil, fmt.Errorf("failed to read question file: %w", err)
		}
	}
	return questions.ParsePool(data)
}

func devCodes(cfg config.Codes) *codes.MemoryQuerier {
	normalizer := codes.NewValidator(nil, cfg.SpecialPrefix)
	mem := codes.NewMemoryQuerier()
	for _, raw := range cfg.DevCodes {
		code, err := normalizer.Normalize(raw)
		if err != nil {
			log.Warn().Str("code", raw).Msg("ignoring malformed development code")
			continue
		}
		mem.Add(code, false)
	}
	if len(cfg.DevCodes) == 0 {
		log.Warn().Msg("no development codes configured, nobody can join")
	}
	return mem
}

// start runs the background workers. The returned channel closes once all of
// them have returned after ctx is cancelled.
func (s *Services) start(ctx context.Context) <-chan struct{} {
	var wg sync.WaitGroup
	run := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
			log.Debug().Str("worker", name).Msg("worker stopped")
		}()
	}

	run("gateway", func() {
		if err := s.Gateway.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	})
	run("reaper", func() { s.Reaper.Run(ctx) })
	if s.sink != nil {
		run("events", func() { s.sink.Run(ctx) })
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

func (s *Services) close() {
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close event stream")
		}
	}
}
