package settings

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/hpungsan/ctxbridge/internal/errors"
	"github.com/hpungsan/ctxbridge/internal/store"
)

// TemplatePack is the YAML layout accepted by ImportTemplates:
//
//	templates:
//	  - id: brief
//	    name: Brief
//	    content: |
//	      **{{source_title}}**: {{content}}
type TemplatePack struct {
	Templates []Template `yaml:"templates"`
}

// ImportResult reports what ImportTemplates changed.
type ImportResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
}

// ImportTemplates merges a YAML template pack into the stored templates.
// Entries whose id matches an existing template replace it; entries
// without an id get a generated one.
func (s *Settings) ImportTemplates(ctx context.Context, r io.Reader) (*ImportResult, error) {
	var pack TemplatePack
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&pack); err != nil && err != io.EOF {
		return nil, errors.NewValidation(fmt.Sprintf("invalid template pack: %v", err))
	}
	if len(pack.Templates) == 0 {
		return nil, errors.NewValidation("template pack contains no templates")
	}

	for i, t := range pack.Templates {
		if strings.TrimSpace(t.Name) == "" || strings.TrimSpace(t.Content) == "" {
			return nil, errors.NewValidation(fmt.Sprintf("template %d: name and content are required", i+1))
		}
	}

	templates, err := s.Templates(ctx)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(templates))
	for i, t := range templates {
		index[t.ID] = i
	}

	result := &ImportResult{}
	for _, t := range pack.Templates {
		t.Name = strings.TrimSpace(t.Name)
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if i, ok := index[t.ID]; ok {
			templates[i] = t
			result.Updated++
			continue
		}
		index[t.ID] = len(templates)
		templates = append(templates, t)
		result.Added++
	}

	if err := s.store.SetValue(ctx, store.KeyTemplates, templates); err != nil {
		return nil, err
	}
	return result, nil
}
