package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ternarybob/cavitas/internal/common"
)

// Service is a read-only wrapper around the loaded Config
type Service struct {
	config  *common.Config
	sources []string
}

// NewService creates a new config service. sources are the files the
// config was loaded from, in load order.
func NewService(cfg *common.Config, sources ...string) *Service {
	return &Service{config: cfg, sources: sources}
}

// GetConfig returns the complete configuration
func (s *Service) GetConfig() *common.Config {
	return s.config
}

// Sources returns the config files in load order
func (s *Service) Sources() []string {
	return append([]string(nil), s.sources...)
}

// Server configuration accessors
func (s *Service) GetServerPort() int {
	return s.config.Server.Port
}

func (s *Service) GetServerHost() string {
	return s.config.Server.Host
}

func (s *Service) GetServerURL() string {
	return fmt.Sprintf("http://%s:%d", s.config.Server.Host, s.config.Server.Port)
}

// Detection service accessors
func (s *Service) GetServiceURL() string {
	return strings.TrimRight(s.config.Service.BaseURL, "/") + s.config.Service.APIPath
}

func (s *Service) GetStoreDir() string {
	return s.config.Store.Dir
}

// Logging configuration accessors
func (s *Service) GetLoggingLevel() string {
	return s.config.Logging.Level
}

func (s *Service) GetLoggingOutput() []string {
	return s.config.Logging.Output
}

// Sanitized returns a copy of the config that is safe to expose over HTTP:
// credentials embedded in the service URL are redacted.
func (s *Service) Sanitized() common.Config {
	cfg := *s.config
	cfg.Logging.Output = append([]string(nil), s.config.Logging.Output...)
	cfg.Server.AllowedOrigins = append([]string(nil), s.config.Server.AllowedOrigins...)

	if u, err := url.Parse(cfg.Service.BaseURL); err == nil && u.User != nil {
		u.User = url.User("redacted")
		cfg.Service.BaseURL = u.String()
	}
	return cfg
}
