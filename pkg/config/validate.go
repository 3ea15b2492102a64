package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator"

	apperrors "github.com/Adithya-Monish-Kumar-K/adaptive-index/pkg/errors"
)

// Validate is the final check after the file and environment overrides have
// been applied. Every failure wraps ErrConfiguration.
func (c *Config) Validate() error {
	translateError := func(e validator.FieldError) string {
		switch e.ActualTag() {
		case "required":
			return "value is empty"
		case "stopwords":
			return fmt.Sprintf("%q is not a .txt or .json stop-word list", e.Value())
		case "oneof":
			return fmt.Sprintf("%v is not one of [%s]", e.Value(), e.Param())
		default:
			return fmt.Sprintf("invalid value %v (%s)", e.Value(), e.Tag())
		}
	}

	v := validator.New()
	err := v.RegisterValidation("stopwords", func(fl validator.FieldLevel) bool {
		switch strings.ToLower(filepath.Ext(fl.Field().String())) {
		case ".txt", ".json":
			return true
		}
		return false
	})
	if err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", apperrors.ErrConfiguration, err)
		}
		message := "invalid config values:"
		for _, fe := range verrs {
			message += fmt.Sprintf(" %s: %s;", fe.Namespace(), translateError(fe))
		}
		return fmt.Errorf("%w: %s", apperrors.ErrConfiguration, strings.TrimSuffix(message, ";"))
	}

	if c.Search.DefaultLimit > c.Search.MaxResults {
		return fmt.Errorf("%w: search.defaultLimit cannot exceed search.maxResults", apperrors.ErrConfiguration)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("%w: redis.addr is required when redis is enabled", apperrors.ErrConfiguration)
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topics.IndexComplete == "") {
		return fmt.Errorf("%w: kafka.brokers and kafka.topics.indexComplete are required when kafka is enabled", apperrors.ErrConfiguration)
	}
	if c.Memory.SampleInterval <= 0 {
		return fmt.Errorf("%w: memory.sampleInterval must be positive", apperrors.ErrConfiguration)
	}
	return nil
}
