// Package seed imports feed source definitions from YAML.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Saul-Punybz/newsdesk/internal/models"
	"github.com/Saul-Punybz/newsdesk/internal/parser"
)

const defaultPollInterval = 15 * time.Minute

// File is the on-disk layout.
type File struct {
	Sources []SourceDef `yaml:"sources"`
}

// SourceDef is one source entry. Enabled defaults to true.
type SourceDef struct {
	Name         string        `yaml:"name"`
	Endpoint     string        `yaml:"endpoint"`
	Format       string        `yaml:"format"`
	Category     string        `yaml:"category"`
	Enabled      *bool         `yaml:"enabled"`
	AutoApprove  bool          `yaml:"auto_approve"`
	PollInterval string        `yaml:"poll_interval"`
	Tuning       models.Tuning `yaml:"tuning"`
}

// Upserter stores sources keyed by endpoint.
type Upserter interface {
	UpsertSource(ctx context.Context, src *models.FeedSource) error
}

// Parse decodes and validates a YAML document.
func Parse(raw []byte) ([]models.FeedSource, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("seed: parse: %w", err)
	}

	out := make([]models.FeedSource, 0, len(f.Sources))
	var errs []error
	seen := make(map[string]bool)
	for i, def := range f.Sources {
		src, err := def.toSource()
		if err != nil {
			errs = append(errs, fmt.Errorf("seed: source %d (%s): %w", i, def.Name, err))
			continue
		}
		if seen[src.Endpoint] {
			errs = append(errs, fmt.Errorf("seed: source %d (%s): duplicate endpoint %s", i, def.Name, src.Endpoint))
			continue
		}
		seen[src.Endpoint] = true
		out = append(out, src)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func (d SourceDef) toSource() (models.FeedSource, error) {
	name := strings.TrimSpace(d.Name)
	endpoint := strings.TrimSpace(d.Endpoint)
	if name == "" {
		return models.FeedSource{}, errors.New("name is required")
	}
	if endpoint == "" {
		return models.FeedSource{}, errors.New("endpoint is required")
	}

	format := parser.FormatAuto
	if d.Format != "" {
		f, ok := parser.ParseFormat(d.Format)
		if !ok {
			return models.FeedSource{}, fmt.Errorf("unknown format %q", d.Format)
		}
		format = f
	}

	interval := defaultPollInterval
	if d.PollInterval != "" {
		v, err := time.ParseDuration(d.PollInterval)
		if err != nil || v <= 0 {
			return models.FeedSource{}, fmt.Errorf("invalid poll_interval %q", d.PollInterval)
		}
		interval = v
	}

	enabled := true
	if d.Enabled != nil {
		enabled = *d.Enabled
	}

	return models.FeedSource{
		Name:         name,
		Endpoint:     endpoint,
		Format:       string(format),
		Category:     strings.TrimSpace(d.Category),
		Enabled:      enabled,
		AutoApprove:  d.AutoApprove,
		PollInterval: interval,
		Tuning:       d.Tuning.WithDefaults(),
	}, nil
}

// ImportFile reads path and upserts every source it defines. Nothing is
// written when any entry is invalid.
func ImportFile(ctx context.Context, store Upserter, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("seed: read %s: %w", path, err)
	}
	sources, err := Parse(raw)
	if err != nil {
		return 0, err
	}
	for i := range sources {
		if err := store.UpsertSource(ctx, &sources[i]); err != nil {
			return i, fmt.Errorf("seed: upsert %s: %w", sources[i].Name, err)
		}
		slog.Info("seed: source upserted", "name", sources[i].Name, "id", sources[i].ID, "endpoint", sources[i].Endpoint)
	}
	return len(sources), nil
}
