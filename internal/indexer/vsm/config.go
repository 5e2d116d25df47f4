package vsm

import (
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/docrank/pkg/errors"
)

// Config holds the fitted model's vocabulary selection parameters. It is
// persisted with the model so a reloaded snapshot analyses queries exactly
// as the build did.
type Config struct {
	MaxFeatures int      `json:"max_features"`
	MinDF       int      `json:"min_df"`
	MaxDF       float64  `json:"max_df"`
	NgramMin    int      `json:"ngram_min"`
	NgramMax    int      `json:"ngram_max"`
	StopWords   []string `json:"stop_words"`
}

// DefaultConfig mirrors the engine defaults: 5000 features, unigrams and
// bigrams, English stop words, min_df 1, max_df 0.95.
func DefaultConfig() Config {
	stop, _ := StopWords("english", nil)
	return Config{
		MaxFeatures: 5000,
		MinDF:       1,
		MaxDF:       0.95,
		NgramMin:    1,
		NgramMax:    2,
		StopWords:   stop,
	}
}

func (c Config) Validate() error {
	switch {
	case c.MaxFeatures < 1:
		return fmt.Errorf("%w: max_features must be >= 1, got %d", apperrors.ErrInvalidInput, c.MaxFeatures)
	case c.MinDF < 1:
		return fmt.Errorf("%w: min_df must be >= 1, got %d", apperrors.ErrInvalidInput, c.MinDF)
	case c.MaxDF <= 0 || c.MaxDF > 1:
		return fmt.Errorf("%w: max_df must be in (0, 1], got %g", apperrors.ErrInvalidInput, c.MaxDF)
	case c.NgramMin < 1 || c.NgramMax < c.NgramMin:
		return fmt.Errorf("%w: ngram range (%d, %d) is invalid", apperrors.ErrInvalidInput, c.NgramMin, c.NgramMax)
	}
	return nil
}

func errUnknownStopList(name string) error {
	return fmt.Errorf("%w: unknown stop-word list %q", apperrors.ErrInvalidInput, name)
}
