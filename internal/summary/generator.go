// Package summary generates export artifacts (text summaries, podcast
// style scripts, synthesized audio) over a set of completed sources.
// Summary jobs run in the background scheduler and report progress
// through status events; they never touch the source records
// themselves, so a summary failure cannot flip a completed source back
// to failed.
package summary

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/localbook/backend/internal/broadcast"
	"github.com/localbook/backend/internal/metrics"
	"github.com/localbook/backend/internal/storage/models"
	"github.com/localbook/backend/pkg/errdefs"
	"github.com/localbook/backend/pkg/logger"
	"github.com/localbook/backend/pkg/utils"
)

// Format selects the export artifact type.
type Format string

const (
	FormatText   Format = "txt"
	FormatDocx   Format = "docx"
	FormatScript Format = "script"
	FormatAudio  Format = "audio"
)

// ParseFormat validates a client-supplied format string.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatText, FormatDocx, FormatScript, FormatAudio:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unsupported summary format %q", s)
	}
}

// Store is the slice of the record store the generator reads.
type Store interface {
	GetSourcesByIDs(ids []string) ([]models.Source, error)
}

// Summarizer produces the summary text in the requested style.
type Summarizer interface {
	Summarize(ctx context.Context, text, style string) (string, error)
}

// Speech renders text to spoken audio.
type Speech interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

type Config struct {
	ExportsDir string
}

type Generator struct {
	store       Store
	summarizer  Summarizer
	speech      Speech
	broadcaster *broadcast.Broadcaster
	cfg         Config
}

func NewGenerator(store Store, summarizer Summarizer, speech Speech, broadcaster *broadcast.Broadcaster, cfg Config) *Generator {
	return &Generator{
		store:       store,
		summarizer:  summarizer,
		speech:      speech,
		broadcaster: broadcaster,
		cfg:         cfg,
	}
}

// Validate checks that every named source exists and is completed. It
// runs synchronously at request time so a bad request is rejected
// before any job is admitted; violations list every offending id.
func (g *Generator) Validate(ids []string) error {
	sources, err := g.store.GetSourcesByIDs(ids)
	if err != nil {
		return err
	}

	found := make(map[string]models.Source, len(sources))
	for _, s := range sources {
		found[s.ID] = s
	}

	var notReady []string
	for _, id := range ids {
		src, ok := found[id]
		if !ok {
			return &errdefs.NotFoundError{Resource: "source", ID: id}
		}
		if src.Status != models.StatusCompleted {
			notReady = append(notReady, id)
		}
	}
	if len(notReady) > 0 {
		return &errdefs.NotReadyError{IDs: notReady}
	}
	return nil
}

// JobKey is the scheduler admission key for a summary request. The same
// source set and format map to the same key, so an identical in-flight
// request is not duplicated.
func JobKey(ids []string, format Format) string {
	return "summary:" + setHash(ids) + ":" + string(format)
}

// Filename is the artifact name a finished job will produce, computed
// up front so the accepted response can tell the client where to poll.
func Filename(ids []string, format Format) string {
	ext := ".txt"
	if format == FormatAudio {
		ext = ".wav"
	}
	return "summary_" + setHash(ids) + "_" + string(format) + ext
}

// Run produces the artifact for the given source set. It is meant to
// execute inside a scheduler job; errors are reported through status
// events rather than returned, since no caller is waiting.
func (g *Generator) Run(ctx context.Context, ids []string, format Format) {
	g.publish(ids, models.EventSummarizing, "")

	text, err := g.collectText(ids)
	if err != nil {
		g.fail(ids, format, err)
		return
	}

	summary, err := g.summarizer.Summarize(ctx, text, styleFor(format))
	if err != nil {
		g.fail(ids, format, &errdefs.GenerationError{Err: err})
		return
	}

	var payload []byte
	switch format {
	case FormatAudio:
		audio, err := g.speech.Synthesize(ctx, summary)
		if err != nil {
			g.fail(ids, format, &errdefs.GenerationError{Err: err})
			return
		}
		payload = audio
	default:
		// Rich docx rendering is not wired up; the docx format degrades
		// to the plain text artifact, same extension and all.
		payload = []byte(summary)
	}

	path := filepath.Join(g.cfg.ExportsDir, Filename(ids, format))
	if err := os.MkdirAll(g.cfg.ExportsDir, 0o755); err != nil {
		g.fail(ids, format, fmt.Errorf("failed to create exports dir: %w", err))
		return
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		g.fail(ids, format, fmt.Errorf("failed to write summary artifact: %w", err))
		return
	}

	metrics.SummariesGenerated.WithLabelValues(string(format), "success").Inc()
	g.publish(ids, models.EventSummaryCompleted, "")
	logger.Info("Summary generated",
		zap.Strings("source_ids", ids),
		zap.String("format", string(format)),
		zap.String("path", path),
	)
}

// collectText concatenates the processed artifacts of the source set in
// the order the ids were given.
func (g *Generator) collectText(ids []string) (string, error) {
	sources, err := g.store.GetSourcesByIDs(ids)
	if err != nil {
		return "", err
	}

	byID := make(map[string]models.Source, len(sources))
	for _, s := range sources {
		byID[s.ID] = s
	}

	var sb strings.Builder
	for _, id := range ids {
		src, ok := byID[id]
		if !ok {
			return "", &errdefs.NotFoundError{Resource: "source", ID: id}
		}
		data, err := os.ReadFile(src.ProcessedPath)
		if err != nil {
			return "", fmt.Errorf("failed to read artifact for source %s: %w", id, err)
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.Write(data)
	}
	return sb.String(), nil
}

func (g *Generator) fail(ids []string, format Format, err error) {
	metrics.SummariesGenerated.WithLabelValues(string(format), "failure").Inc()
	logger.Error("Summary generation failed",
		zap.Strings("source_ids", ids),
		zap.String("format", string(format)),
		zap.Error(err),
	)
	g.publish(ids, models.EventSummaryFailed, err.Error())
}

func (g *Generator) publish(ids []string, event, errorMessage string) {
	for _, id := range ids {
		g.broadcaster.Publish(models.StatusEvent{
			SourceID:     id,
			Status:       event,
			ErrorMessage: errorMessage,
		})
	}
}

// styleFor maps formats to the summarizer styles. Script asks for the
// two-voice dialogue; everything else gets the plain summary, and audio
// narrates the plain summary.
func styleFor(format Format) string {
	if format == FormatScript {
		return "script"
	}
	return "summary"
}

func setHash(ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return utils.HashString(strings.Join(sorted, ","))[:10]
}
