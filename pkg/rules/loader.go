// Package rules loads and validates the declarative scoring configuration.
// Documents are strongly typed, content hashed, and rejected before any row
// is scored when invalid.
package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/reed/pkg/models"
)

// LoadedRule pairs a parsed rule document with the content hash of the file
// it came from.
type LoadedRule struct {
	Document models.RuleDocument
	YamlHash string
	Path     string
}

// Loader parses and validates rule documents.
type Loader struct {
	validate *validator.Validate
	logger   ectologger.Logger
}

func NewLoader(logger ectologger.Logger) *Loader {
	return &Loader{
		validate: validator.New(),
		logger:   logger,
	}
}

// LoadFile reads, parses, and validates a single rule document.
func (l *Loader) LoadFile(path string) (*LoadedRule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule document %s: %w", path, err)
	}

	doc, err := l.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid rule document %s: %w", path, err)
	}

	hash := sha256.Sum256(raw)
	return &LoadedRule{
		Document: *doc,
		YamlHash: hex.EncodeToString(hash[:]),
		Path:     path,
	}, nil
}

// LoadFolder loads every .yaml/.yml rule document in dir, excluding the
// trust policy file. Documents are returned in entity-type processing order.
func (l *Loader) LoadFolder(dir string) ([]LoadedRule, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule folder %s: %w", dir, err)
	}

	var rules []LoadedRule
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if strings.HasPrefix(name, "trust_policy") {
			continue
		}
		rule, err := l.LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}

	if len(rules) == 0 {
		return nil, fmt.Errorf("no rule documents found in %s", dir)
	}

	order := make(map[models.EntityType]int, len(models.EntityTypeOrder))
	for i, t := range models.EntityTypeOrder {
		order[t] = i
	}
	sort.SliceStable(rules, func(i, j int) bool {
		return order[rules[i].Document.EntityType] < order[rules[j].Document.EntityType]
	})

	return rules, nil
}

// Parse unmarshals and validates a rule document.
func (l *Loader) Parse(raw []byte) (*models.RuleDocument, error) {
	var doc models.RuleDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("yaml parse error: %w", err)
	}

	if err := l.validate.Struct(&doc); err != nil {
		return nil, err
	}

	if err := validateDocument(&doc); err != nil {
		return nil, err
	}

	return &doc, nil
}

func validateDocument(doc *models.RuleDocument) error {
	if !doc.EntityType.Valid() {
		return fmt.Errorf("unknown entity type %q", doc.EntityType)
	}

	t := doc.Thresholds
	for name, v := range map[string]float64{"hold": t.Hold, "review": t.Review, "auto_promote": t.AutoPromote} {
		if v < 0 || v > 1 {
			return fmt.Errorf("threshold %s=%v outside [0,1]", name, v)
		}
	}
	if !(t.Hold <= t.Review && t.Review <= t.AutoPromote) {
		return fmt.Errorf("thresholds must be ordered hold <= review <= auto_promote, got %v <= %v <= %v", t.Hold, t.Review, t.AutoPromote)
	}

	for feature, weight := range doc.FeatureWeights {
		if weight < 0 {
			return fmt.Errorf("feature weight %s=%v is negative", feature, weight)
		}
	}

	for attr, penalty := range doc.MissingAttributePenalties {
		if penalty < 0 {
			return fmt.Errorf("missing attribute penalty %s=%v is negative", attr, penalty)
		}
	}

	for attr, method := range doc.Survivorship {
		if !method.Valid() {
			return fmt.Errorf("unknown survivorship method %q for attribute %s", method, attr)
		}
	}

	return nil
}
