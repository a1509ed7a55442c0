package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vthunder/steward/internal/reflex"
	"github.com/vthunder/steward/internal/resolve"
)

// VocabularyFile is the YAML layout of VOCABULARY_FILE. Lists that are
// present replace the built-in ones; missing lists keep the defaults.
//
//	resolver:
//	  stop_words: [a, the, el, la]
//	  bulk_words: [all, every, todos]
//	quick_replies:
//	  - name: affirm
//	    trigger: {pattern: "yes|sure", max_words: 3}
//	    intent: affirm
type VocabularyFile struct {
	Resolver     resolve.Vocabulary `yaml:"resolver"`
	QuickReplies []reflex.Reflex    `yaml:"quick_replies"`
}

// Vocabulary is the effective word lists and quick-reply rules
type Vocabulary struct {
	Resolver     resolve.Vocabulary
	QuickReplies []reflex.Reflex
}

// DefaultVocabulary returns the built-in lists
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Resolver:     resolve.DefaultVocabulary(),
		QuickReplies: reflex.DefaultReflexes(),
	}
}

// LoadVocabulary reads path over the defaults. An empty path returns the
// defaults.
func LoadVocabulary(path string) (Vocabulary, error) {
	vocab := DefaultVocabulary()
	if path == "" {
		return vocab, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return vocab, fmt.Errorf("read vocabulary: %w", err)
	}
	var file VocabularyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return vocab, fmt.Errorf("parse vocabulary %s: %w", path, err)
	}

	override(&vocab.Resolver.StopWords, file.Resolver.StopWords)
	override(&vocab.Resolver.BulkWords, file.Resolver.BulkWords)
	override(&vocab.Resolver.CalendarWords, file.Resolver.CalendarWords)
	override(&vocab.Resolver.TaskWords, file.Resolver.TaskWords)
	override(&vocab.Resolver.FillerWords, file.Resolver.FillerWords)
	if len(file.QuickReplies) > 0 {
		vocab.QuickReplies = file.QuickReplies
	}
	return vocab, nil
}

func override(dst *[]string, src []string) {
	if len(src) > 0 {
		*dst = src
	}
}
