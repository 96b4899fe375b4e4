package briefing

import (
	"context"
	"fmt"
	"strings"

	"github.com/orchestrate-hq/orchestrate/internal/types"
	"github.com/orchestrate-hq/orchestrate/pkg/fetcher"
)

// maxArticleRunes caps how much of each fetched article goes into the
// prompt.
const maxArticleRunes = 2000

type BuilderConfig struct {
	Sources    []string // article URLs to pull into the brief
	RecentDocs int      // how many recent uploads to mention
}

// Builder composes the morning brief from freshly fetched articles and
// the most recent knowledge-base uploads.
type Builder struct {
	config    BuilderConfig
	fetcher   *fetcher.Fetcher
	docs      types.DocumentStore
	generator types.Generator
}

func NewBuilder(config BuilderConfig, f *fetcher.Fetcher, docs types.DocumentStore, generator types.Generator) *Builder {
	if config.RecentDocs <= 0 {
		config.RecentDocs = 5
	}
	return &Builder{
		config:    config,
		fetcher:   f,
		docs:      docs,
		generator: generator,
	}
}

// Brief generates the morning brief text.
func (b *Builder) Brief(ctx context.Context) (string, error) {
	var sb strings.Builder

	articles := b.fetcher.FetchAll(ctx, b.config.Sources)
	for _, a := range articles {
		fmt.Fprintf(&sb, "Article: %s\n%s\n\n", a.Title, truncate(a.Content, maxArticleRunes))
	}

	recent, err := b.docs.Recent(ctx, b.config.RecentDocs)
	if err != nil {
		return "", err
	}
	if len(recent) > 0 {
		sb.WriteString("Recently uploaded to the knowledge base:\n")
		for _, doc := range recent {
			fmt.Fprintf(&sb, "- %s (%s, status %s)\n", doc.Filename, doc.MIMEType, doc.Status)
		}
		sb.WriteString("\n")
	}

	if sb.Len() == 0 {
		sb.WriteString("No articles or recent uploads are available today.\n")
	}

	sb.WriteString("Write a short morning brief summarizing the material above for a busy professional.")

	return b.generator.Generate(ctx,
		"You are Orchestrate, an assistant that writes crisp morning briefs.",
		sb.String())
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
