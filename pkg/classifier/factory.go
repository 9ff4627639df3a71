package classifier

import (
	"time"

	"github.com/dotsetgreg/dotmod/pkg/config"
	"github.com/dotsetgreg/dotmod/pkg/logger"
)

// CreateClassifier picks the implementation the configuration asks for.
func CreateClassifier(cfg config.ClassifierConfig) Classifier {
	if !cfg.Enabled {
		logger.InfoC("classifier", "Risk classifier disabled")
		return Disabled{Debug: cfg.Debug}
	}
	if cfg.Endpoint == "" {
		logger.WarnC("classifier", "Risk classifier enabled without endpoint, using rule fallback")
	}
	return NewHTTPClassifier(HTTPOptions{
		Endpoint:       cfg.Endpoint,
		APIKey:         cfg.APIKey,
		Proxy:          cfg.Proxy,
		Debug:          cfg.Debug,
		ConnectTimeout: time.Duration(cfg.ConnectTimeoutMS) * time.Millisecond,
		RequestTimeout: time.Duration(cfg.RequestTimeoutMS) * time.Millisecond,
		CacheSize:      cfg.CacheSize,
		CacheTTL:       time.Duration(cfg.CacheTTLSeconds) * time.Second,
	})
}
