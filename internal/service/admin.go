package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/concierge-router/internal/model"
	"github.com/capitalize-ai/concierge-router/pkg/logger"
)

// QuickResponseStore persists canned replies.
type QuickResponseStore interface {
	ListQuickResponses(ctx context.Context, activeOnly bool) ([]model.QuickResponse, error)
	QuickResponse(ctx context.Context, id string) (*model.QuickResponse, error)
	CreateQuickResponse(ctx context.Context, in model.QuickResponseInput) (*model.QuickResponse, error)
	UpdateQuickResponse(ctx context.Context, id string, in model.QuickResponseInput) (*model.QuickResponse, error)
	DeleteQuickResponse(ctx context.Context, id string) error
}

// QuickResponseService manages canned operator replies.
type QuickResponseService struct {
	store QuickResponseStore
}

// NewQuickResponseService creates a new quick response service.
func NewQuickResponseService(st QuickResponseStore) *QuickResponseService {
	return &QuickResponseService{store: st}
}

func (s *QuickResponseService) List(ctx context.Context, activeOnly bool) ([]model.QuickResponse, error) {
	return s.store.ListQuickResponses(ctx, activeOnly)
}

func (s *QuickResponseService) Get(ctx context.Context, id string) (*model.QuickResponse, error) {
	return s.store.QuickResponse(ctx, id)
}

func (s *QuickResponseService) Create(ctx context.Context, in model.QuickResponseInput) (*model.QuickResponse, error) {
	return s.store.CreateQuickResponse(ctx, in)
}

func (s *QuickResponseService) Update(ctx context.Context, id string, in model.QuickResponseInput) (*model.QuickResponse, error) {
	return s.store.UpdateQuickResponse(ctx, id, in)
}

func (s *QuickResponseService) Delete(ctx context.Context, id string) error {
	return s.store.DeleteQuickResponse(ctx, id)
}

// TrainingStore persists curated Q&A pairs.
type TrainingStore interface {
	ListTrainingPairs(ctx context.Context, activeOnly bool) ([]model.TrainingPair, error)
	CreateTrainingPair(ctx context.Context, question, answer string) (*model.TrainingPair, error)
	DeleteTrainingPair(ctx context.Context, id string) error
}

// TrainingService manages the Q&A pairs the responder is primed with.
type TrainingService struct {
	store TrainingStore
}

// NewTrainingService creates a new training service.
func NewTrainingService(st TrainingStore) *TrainingService {
	return &TrainingService{store: st}
}

func (s *TrainingService) List(ctx context.Context) ([]model.TrainingPair, error) {
	return s.store.ListTrainingPairs(ctx, false)
}

func (s *TrainingService) Create(ctx context.Context, req model.TrainingPairRequest) (*model.TrainingPair, error) {
	q, a := strings.TrimSpace(req.Question), strings.TrimSpace(req.Answer)
	if q == "" {
		return nil, model.Invalid("question", "is required")
	}
	if a == "" {
		return nil, model.Invalid("answer", "is required")
	}
	return s.store.CreateTrainingPair(ctx, q, a)
}

func (s *TrainingService) Delete(ctx context.Context, id string) error {
	return s.store.DeleteTrainingPair(ctx, id)
}

// SettingsStore persists the singleton platform settings.
type SettingsStore interface {
	PlatformSettings(ctx context.Context) (*model.PlatformSettings, error)
	UpdatePlatformSettings(ctx context.Context, patch model.PlatformSettingsPatch) (*model.PlatformSettings, error)
}

// PlatformClient is the cached platform client the settings feed.
type PlatformClient interface {
	Invalidate()
	Probe(ctx context.Context) (*model.BotInfo, error)
}

// PlatformSettingsService reads and writes platform settings. Secrets leave
// the service masked.
type PlatformSettingsService struct {
	store  SettingsStore
	client PlatformClient
	logger *logger.Logger
}

// NewPlatformSettingsService creates a new platform settings service.
func NewPlatformSettingsService(st SettingsStore, client PlatformClient, log *logger.Logger) *PlatformSettingsService {
	if log == nil {
		log = logger.Nop()
	}
	return &PlatformSettingsService{store: st, client: client, logger: log.Named("platform_settings")}
}

// Get returns the masked settings.
func (s *PlatformSettingsService) Get(ctx context.Context) (*model.PlatformSettings, error) {
	ps, err := s.store.PlatformSettings(ctx)
	if err != nil {
		return nil, err
	}
	masked := ps.Masked()
	return &masked, nil
}

// Update stores patch and drops the cached client so the next platform call
// uses the new credentials. Secrets echoed back in masked form are ignored.
func (s *PlatformSettingsService) Update(ctx context.Context, patch model.PlatformSettingsPatch) (*model.PlatformSettings, error) {
	if isMasked(patch.ChannelAccessToken) {
		patch.ChannelAccessToken = nil
	}
	if isMasked(patch.ChannelSecret) {
		patch.ChannelSecret = nil
	}

	ps, err := s.store.UpdatePlatformSettings(ctx, patch)
	if err != nil {
		return nil, err
	}
	if s.client != nil {
		s.client.Invalidate()
	}
	s.logger.Info("platform settings updated",
		zap.Bool("is_active", ps.IsActive),
		zap.Bool("auto_reply", ps.AutoReply),
	)

	masked := ps.Masked()
	return &masked, nil
}

// Test checks the stored credentials against the platform.
func (s *PlatformSettingsService) Test(ctx context.Context) *model.PlatformTestResult {
	if s.client == nil {
		return &model.PlatformTestResult{Error: "platform client not configured"}
	}
	info, err := s.client.Probe(ctx)
	if err != nil {
		return &model.PlatformTestResult{Error: err.Error()}
	}
	return &model.PlatformTestResult{Success: true, BotInfo: info}
}

func isMasked(v *string) bool {
	return v != nil && strings.HasPrefix(*v, "****")
}
