package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"store-migrator/core/database"
	"store-migrator/core/docstore"
	"store-migrator/core/treestore"
	"store-migrator/feature/migrate"

	"github.com/pmezard/go-difflib/difflib"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config configures post-migration validation.
type Config struct {
	Enabled bool `mapstructure:"enabled" default:"true"`
	// SampleSize is how many documents per collection are compared field
	// by field.
	SampleSize int `mapstructure:"sample_size" default:"1"`
}

// CollectionCheck is the outcome for one collection.
type CollectionCheck struct {
	Collection  string   `json:"collection" yaml:"collection"`
	Source      string   `json:"source" yaml:"source"`
	SourceCount int      `json:"source_count" yaml:"source_count"`
	TargetCount int      `json:"target_count" yaml:"target_count"`
	Match       bool     `json:"match" yaml:"match"`
	Sampled     []string `json:"sampled,omitempty" yaml:"sampled,omitempty"`
	Missing     []string `json:"missing,omitempty" yaml:"missing,omitempty"`
	Diff        string   `json:"diff,omitempty" yaml:"diff,omitempty"`
	Error       string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// Report is the outcome of a validation run.
type Report struct {
	Collections   []CollectionCheck `json:"collections" yaml:"collections"`
	SchemaMissing []string          `json:"schema_missing,omitempty" yaml:"schema_missing,omitempty"`
	Passed        bool              `json:"passed" yaml:"passed"`
	Duration      time.Duration     `json:"duration" yaml:"duration"`
}

// Validator compares the source tree with the migrated documents.
type Validator struct {
	source      treestore.Store
	target      docstore.Store
	transformer *migrate.Transformer
	rules       []migrate.Rule
	cfg         Config
	logger      *zap.Logger
}

// NewValidator creates a validator for rules.
func NewValidator(source treestore.Store, target docstore.Store, transformer *migrate.Transformer, rules []migrate.Rule, cfg Config, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{
		source:      source,
		target:      target,
		transformer: transformer,
		rules:       rules,
		cfg:         cfg,
		logger:      logger,
	}
}

// Validate checks every collection. A collection that cannot be read is
// reported as failed; the run continues.
func (v *Validator) Validate(ctx context.Context) (*Report, error) {
	started := time.Now()
	report := &Report{Passed: true}

	if missing, err := v.checkSchema(); err != nil {
		return nil, err
	} else if len(missing) > 0 {
		report.SchemaMissing = missing
		report.Passed = false
		v.logger.Warn("Target table is missing columns", zap.Strings("columns", missing))
	}

	for _, rule := range v.rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		check := v.checkCollection(ctx, rule)
		if !check.Match || check.Error != "" || len(check.Missing) > 0 || check.Diff != "" {
			report.Passed = false
		}
		report.Collections = append(report.Collections, check)

		v.logger.Info("Collection validated",
			zap.String("collection", check.Collection),
			zap.Int("source", check.SourceCount),
			zap.Int("target", check.TargetCount),
			zap.Bool("match", check.Match),
		)
	}

	report.Duration = time.Since(started)
	return report, nil
}

func (v *Validator) checkCollection(ctx context.Context, rule migrate.Rule) CollectionCheck {
	path := rule.SourcePath()
	check := CollectionCheck{Collection: rule.Collection, Source: strings.Join(path, "/")}

	root, err := treestore.Read(ctx, v.source, path...)
	if err != nil {
		check.Error = err.Error()
		return check
	}
	check.SourceCount = treestore.ChildCount(root)

	docs, err := v.target.ListDocuments(ctx, rule.Collection)
	if err != nil {
		check.Error = err.Error()
		return check
	}
	check.TargetCount = len(docs)
	check.Match = check.SourceCount == check.TargetCount

	if v.cfg.SampleSize <= 0 || root.Value == nil {
		return check
	}

	var diffs []string
	for doc := range v.transformer.Transform(root, rule.Collection) {
		if len(check.Sampled) >= v.cfg.SampleSize {
			break
		}
		check.Sampled = append(check.Sampled, doc.ID)

		got, ok, err := v.target.GetDocument(ctx, doc.Collection, doc.ID)
		if err != nil {
			check.Error = err.Error()
			return check
		}
		if !ok {
			check.Missing = append(check.Missing, doc.ID)
			continue
		}
		diff, err := Diff(doc, got)
		if err != nil {
			check.Error = err.Error()
			return check
		}
		if diff != "" {
			diffs = append(diffs, diff)
		}
	}
	check.Diff = strings.Join(diffs, "\n")
	return check
}

func (v *Validator) checkSchema() ([]string, error) {
	sqlStore, ok := v.target.(interface{ DB() *gorm.DB })
	if !ok {
		return nil, nil
	}
	missing, err := database.MissingColumns(sqlStore.DB(), docstore.DocumentsTable, docstore.DocumentColumns)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect target schema: %w", err)
	}
	return missing, nil
}

// Diff renders a unified diff between the expected and the stored fields
// of a document. Fields the store stamps itself are left out. An empty
// string means the documents agree.
func Diff(expected, actual docstore.Document) (string, error) {
	want := map[string]any{}
	got := docstore.CloneFields(actual.Fields)
	if got == nil {
		got = map[string]any{}
	}
	for k, val := range expected.Fields {
		if docstore.IsServerTimestamp(val) {
			delete(got, k)
			continue
		}
		want[k] = val
	}

	a, err := json.MarshalIndent(want, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode expected %s: %w", expected.Path(), err)
	}
	b, err := json.MarshalIndent(got, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode stored %s: %w", actual.Path(), err)
	}
	if string(a) == string(b) {
		return "", nil
	}

	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(a) + "\n"),
		B:        difflib.SplitLines(string(b) + "\n"),
		FromFile: "source/" + expected.Path(),
		ToFile:   "target/" + actual.Path(),
		Context:  2,
	})
}
