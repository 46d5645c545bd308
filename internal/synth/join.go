// Package synth derives one text artifact from a set of staged clips, either
// by template substitution (Join) or through a text-generation collaborator
// (AI Refine).
package synth

import (
	"fmt"
	"strings"

	"github.com/hpungsan/ctxbridge/internal/clip"
	"github.com/hpungsan/ctxbridge/internal/errors"
	"github.com/hpungsan/ctxbridge/internal/settings"
)

// Separator joins per-clip sections in every strategy.
const Separator = "\n\n---\n\n"

// Placeholders recognised in Join templates.
const (
	PlaceholderTitle   = "{{source_title}}"
	PlaceholderURL     = "{{source_url}}"
	PlaceholderContent = "{{content}}"
)

// Join renders each item through tmpl and joins the sections with
// Separator. Substitution is single-pass: text coming from a clip is never
// re-scanned for placeholders. The output depends only on the inputs.
func Join(items []clip.Item, tmpl settings.Template) (string, error) {
	if len(items) == 0 {
		return "", errors.NewValidation("nothing to synthesize: no clips selected")
	}
	if tmpl.Content == "" {
		return "", errors.NewValidation("template content is empty")
	}

	sections := make([]string, len(items))
	for i, it := range items {
		r := strings.NewReplacer(
			PlaceholderTitle, it.Metadata.SourceTitle,
			PlaceholderURL, it.Metadata.SourceURL,
			PlaceholderContent, it.Content,
		)
		sections[i] = r.Replace(tmpl.Content)
	}
	return strings.Join(sections, Separator), nil
}

// BuildContext concatenates title, url and content of every item into the
// context blob sent to the text-generation collaborator.
func BuildContext(items []clip.Item) string {
	sections := make([]string, len(items))
	for i, it := range items {
		sections[i] = fmt.Sprintf("Source: %s\nURL: %s\n\n%s",
			it.Metadata.SourceTitle, it.Metadata.SourceURL, it.Content)
	}
	return strings.Join(sections, Separator)
}
