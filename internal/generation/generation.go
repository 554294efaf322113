// Package generation declares the image-generation and prompt-improvement
// gateways the engine pays for, with the built-in stand-ins used until a
// real provider is configured.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/artbot/core/logger"
)

// ErrFailed reports that the provider could not produce a result.
var ErrFailed = errors.New("generation: failed")

// DefaultImproveTemplate wraps a prompt the way the improver presents it.
const DefaultImproveTemplate = "Улучшенная версия: {prompt} (профессиональный стиль, детальное описание)"

// Request is one paid generation.
type Request struct {
	ID         uuid.UUID
	UserID     int64
	Prompt     string
	TemplateID int
	PhotoRef   string
}

// NewRequest stamps a fresh request id.
func NewRequest(userID int64, prompt string, templateID int, photoRef string) Request {
	return Request{
		ID:         uuid.New(),
		UserID:     userID,
		Prompt:     prompt,
		TemplateID: templateID,
		PhotoRef:   photoRef,
	}
}

// Artifact is the produced image as a transport file reference.
type Artifact struct {
	Ref string
}

// Gateway produces an image for a request.
type Gateway interface {
	Generate(ctx context.Context, req Request) (Artifact, error)
}

// Improver rewrites a user prompt.
type Improver interface {
	Improve(ctx context.Context, lang, prompt string) (string, error)
}

// Echo returns the input photo as the result after an optional delay.
type Echo struct {
	Delay time.Duration
}

func (e Echo) Generate(ctx context.Context, req Request) (Artifact, error) {
	if req.PhotoRef == "" {
		return Artifact{}, fmt.Errorf("%w: empty photo reference", ErrFailed)
	}
	if e.Delay > 0 {
		t := time.NewTimer(e.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return Artifact{}, ctx.Err()
		case <-t.C:
		}
	}
	logger.Debug(ctx, "generation", "generation.echo",
		slog.String("request_id", req.ID.String()),
		slog.Int("template_id", req.TemplateID),
	)
	return Artifact{Ref: req.PhotoRef}, nil
}

// TemplateImprover substitutes the prompt into Format at {prompt}.
type TemplateImprover struct {
	Format string
}

func (t TemplateImprover) Improve(ctx context.Context, _ string, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", fmt.Errorf("%w: empty prompt", ErrFailed)
	}
	format := t.Format
	if format == "" {
		format = DefaultImproveTemplate
	}
	return strings.ReplaceAll(format, "{prompt}", prompt), nil
}
