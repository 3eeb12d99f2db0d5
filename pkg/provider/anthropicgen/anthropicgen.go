// Package anthropicgen is the one illustrative BackgroundGenerator
// adapter this repo carries: it turns a theme or free-text prompt into
// a structured background description via anthropics/anthropic-sdk-go,
// then derives a deterministic placeholder key from that description.
// It demonstrates the adapter boundary without reimplementing a real
// image-generation backend — concrete AI providers are out of scope
// (spec.md §1).
package anthropicgen

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/stewart-y/photopipeline/pkg/errx"
	"github.com/stewart-y/photopipeline/pkg/objectstore"
	"github.com/stewart-y/photopipeline/pkg/provider"
)

// Generator is a BackgroundGenerator backed by an Anthropic model.
type Generator struct {
	client anthropic.Client
	model  anthropic.Model
}

// New builds a Generator using apiKey. model defaults to Claude Haiku,
// the cheapest model suitable for a short structured description.
func New(apiKey string, model anthropic.Model) *Generator {
	if model == "" {
		model = anthropic.ModelClaude3_5HaikuLatest
	}
	return &Generator{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

var _ provider.BackgroundGenerator = (*Generator)(nil)

func (g *Generator) Generate(ctx context.Context, themeOrPrompt string, width, height int, sku, hash string) (provider.BackgroundResult, error) {
	prompt := fmt.Sprintf(
		"Describe, in one paragraph of concrete visual detail (lighting, surface, "+
			"color palette, composition), a product-photography background for the "+
			"theme %q at %dx%d pixels.", themeOrPrompt, width, height)

	msg, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     g.model,
		MaxTokens: 256,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return provider.BackgroundResult{}, errx.Wrap(errx.BackgroundFailed, "generate background description", err)
	}

	description := ""
	if len(msg.Content) > 0 {
		description = msg.Content[0].Text
	}
	if description == "" {
		return provider.BackgroundResult{}, errx.New(errx.BackgroundFailed, "empty background description from model")
	}

	version := versionFromDescription(description)
	return provider.BackgroundResult{
		BackgroundKey: objectstore.BackgroundKey(sku, hash, themeOrPrompt, version),
		Metadata:      map[string]string{"description": description},
	}, nil
}

// versionFromDescription derives a small stable integer (1-1000) from
// the model's description text, so an identical description yields the
// same key (spec §6.4's determinism requirement). Distinct descriptions
// usually land on distinct versions, but collisions are possible.
func versionFromDescription(description string) int {
	sum := sha256.Sum256([]byte(description))
	hexDigest := hex.EncodeToString(sum[:2])
	n := 0
	for _, c := range hexDigest {
		n = n*16 + hexDigit(c)
	}
	return n%1000 + 1
}

func hexDigit(c rune) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	default:
		return 0
	}
}
