package engine

import (
	"context"
	"fmt"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"
)

// Google translates through the Cloud Translation v2 API. It has no local
// models, so EnsureModel only checks that both codes parse as BCP 47 tags.
type Google struct {
	client *translate.Client
}

// NewGoogle creates a client. An empty credentials path falls back to
// Application Default Credentials.
func NewGoogle(ctx context.Context, credentials string) (*Google, error) {
	var opts []option.ClientOption
	if credentials != "" {
		opts = append(opts, option.WithCredentialsFile(credentials))
	}
	client, err := translate.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return &Google{client: client}, nil
}

// Name implements Engine.
func (g *Google) Name() string { return "google" }

// EnsureModel implements Engine.
func (g *Google) EnsureModel(_ context.Context, src, tgt string) error {
	_, _, err := parsePair(src, tgt)
	return err
}

// Translate implements Engine.
func (g *Google) Translate(ctx context.Context, text, src, tgt string) (string, error) {
	srcTag, tgtTag, err := parsePair(src, tgt)
	if err != nil {
		return "", err
	}
	out, err := g.client.Translate(ctx, []string{text}, tgtTag, &translate.Options{
		Source: srcTag,
		Format: translate.Text,
	})
	if err != nil {
		return "", fmt.Errorf("translation failed: %w", err)
	}
	if len(out) == 0 {
		return "", fmt.Errorf("no translation returned")
	}
	return out[0].Text, nil
}

// Close releases the underlying gRPC/HTTP resources.
func (g *Google) Close() error { return g.client.Close() }

func parsePair(src, tgt string) (language.Tag, language.Tag, error) {
	srcTag, err := language.Parse(src)
	if err != nil {
		return language.Und, language.Und, fmt.Errorf("%w: invalid source language %q", ErrUnsupportedPair, src)
	}
	tgtTag, err := language.Parse(tgt)
	if err != nil {
		return language.Und, language.Und, fmt.Errorf("%w: invalid target language %q", ErrUnsupportedPair, tgt)
	}
	return srcTag, tgtTag, nil
}
