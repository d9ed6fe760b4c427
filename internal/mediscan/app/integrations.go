package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/mediscan/internal/mediscan/service"
	"github.com/aussiebroadwan/mediscan/pkg/gemini"
	"github.com/aussiebroadwan/mediscan/pkg/jwtx"
	"github.com/aussiebroadwan/mediscan/pkg/objectstore"
)

// Integrations are the optional outside services. A nil field means the
// dependent feature answers 503, or for chats falls back to a canned reply.
type Integrations struct {
	Model    service.Generator
	Objects  objectstore.Store
	External service.ExternalVerifier
}

// InitIntegrations builds each integration whose settings are present.
func InitIntegrations(ctx context.Context, cfg Config, logger *slog.Logger) (Integrations, error) {
	var in Integrations

	if cfg.GeminiAPIKey != "" {
		client, err := gemini.New(gemini.Config{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			BaseURL: cfg.GeminiBaseURL,
		})
		if err != nil {
			return in, fmt.Errorf("failed to initialize gemini: %w", err)
		}
		in.Model = client
		logger.Info("gemini enabled", "model", cfg.GeminiModel)
	} else {
		logger.Warn("GEMINI_API_KEY not set, analysis disabled and chats use canned replies")
	}

	if cfg.S3Bucket != "" {
		s3, err := objectstore.NewS3(ctx, objectstore.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			return in, fmt.Errorf("failed to initialize avatar storage: %w", err)
		}
		in.Objects = s3
		logger.Info("avatar storage enabled", "bucket", cfg.S3Bucket)
	} else {
		logger.Warn("S3_BUCKET not set, avatar uploads disabled")
	}

	if cfg.ExternalAuthIssuer != "" {
		keys := jwtx.NewRemoteKeySet(cfg.ExternalAuthJWKSURL, nil)
		verifier, err := jwtx.NewExternalVerifier(keys, cfg.ExternalAuthIssuer, cfg.ExternalAuthAudience)
		if err != nil {
			return in, fmt.Errorf("failed to initialize external login: %w", err)
		}
		in.External = verifier
		logger.Info("external login enabled", "issuer", cfg.ExternalAuthIssuer)
	}

	return in, nil
}
