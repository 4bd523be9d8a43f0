package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dangthobach/data-extraction/internal/common"
)

// Source is a connected remote file source for one sync job.
type Source interface {
	List(ctx context.Context, dir, pattern string) ([]string, error)
	Size(ctx context.Context, path string) (int64, error)
	Download(ctx context.Context, path string) (io.ReadCloser, error)
	Close() error
}

// Connector opens a Source from a sync job's source descriptor.
type Connector interface {
	Connect(ctx context.Context, cfg SourceConfig) (Source, error)
}

// SourceConfig is the parsed sync source descriptor carried in the ingest
// message. Missing fields fall back to process defaults.
type SourceConfig struct {
	SourceType  string `json:"sourceType"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	RemotePath  string `json:"remotePath"`
	FilePattern string `json:"filePattern"`
}

// ParseSourceConfig decodes and validates a source descriptor, applying
// defaults for unset fields.
func ParseSourceConfig(raw string, defaults SourceConfig) (SourceConfig, error) {
	cfg := defaults
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			return SourceConfig{}, common.NewAppError("SYNC_CONFIG", "invalid source descriptor", common.ErrValidation)
		}
	}
	if cfg.SourceType == "" {
		cfg.SourceType = "SFTP"
	}
	if cfg.Port == 0 {
		cfg.Port = defaults.Port
	}
	if cfg.Host == "" {
		cfg.Host = defaults.Host
	}
	if cfg.Username == "" {
		cfg.Username = defaults.Username
	}
	if cfg.Password == "" {
		cfg.Password = defaults.Password
	}
	if cfg.RemotePath == "" {
		cfg.RemotePath = defaults.RemotePath
	}
	if cfg.Host == "" {
		return SourceConfig{}, common.NewAppError("SYNC_CONFIG", "source host is required", common.ErrValidation)
	}
	if cfg.SourceType != "SFTP" {
		return SourceConfig{}, common.NewAppError("SYNC_CONFIG",
			fmt.Sprintf("unsupported source type: %s", cfg.SourceType), common.ErrValidation)
	}
	return cfg, nil
}
