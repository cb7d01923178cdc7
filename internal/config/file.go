package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config as a YAML document. Unset keys keep their current value.
type fileConfig struct {
	Server struct {
		Port        string   `yaml:"port"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Database struct {
		URL         string `yaml:"url"`
		SslCertPath string `yaml:"ssl_cert_path"`
	} `yaml:"database"`
	Storage struct {
		Region string `yaml:"region"`
		Bucket string `yaml:"bucket"`
	} `yaml:"storage"`
	AI struct {
		EmbedModel string `yaml:"embed_model"`
		GenModel   string `yaml:"gen_model"`
	} `yaml:"ai"`
	Query struct {
		Timeout    string `yaml:"timeout"`
		MaxLength  *int   `yaml:"max_length"`
		Policy     string `yaml:"policy"`
		MaxSources *int   `yaml:"max_sources"`
	} `yaml:"query"`
	Ingest struct {
		Workers        *int   `yaml:"workers"`
		TargetTokens   *int   `yaml:"target_tokens"`
		OverlapTokens  *int   `yaml:"overlap_tokens"`
		BatchSize      *int   `yaml:"batch_size"`
		MaxUploadBytes *int64 `yaml:"max_upload_bytes"`
	} `yaml:"ingest"`
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return fc.apply(cfg)
}

func (fc *fileConfig) apply(cfg *Config) error {
	setString(&cfg.Port, fc.Server.Port)
	if len(fc.Server.CORSOrigins) > 0 {
		cfg.CORSOrigins = fc.Server.CORSOrigins
	}
	setString(&cfg.LogLevel, fc.Log.Level)
	setString(&cfg.DatabaseURL, fc.Database.URL)
	setString(&cfg.SslCertPath, fc.Database.SslCertPath)
	setString(&cfg.AwsRegion, fc.Storage.Region)
	setString(&cfg.BucketName, fc.Storage.Bucket)
	setString(&cfg.EmbedModel, fc.AI.EmbedModel)
	setString(&cfg.GenModel, fc.AI.GenModel)
	setString(&cfg.QueryPolicy, fc.Query.Policy)

	if fc.Query.Timeout != "" {
		d, err := time.ParseDuration(fc.Query.Timeout)
		if err != nil {
			return fmt.Errorf("parse config file: query.timeout %q: %w", fc.Query.Timeout, err)
		}
		cfg.QueryTimeout = d
	}
	setInt(&cfg.MaxQueryLength, fc.Query.MaxLength)
	setInt(&cfg.MaxSources, fc.Query.MaxSources)
	setInt(&cfg.IngestWorkers, fc.Ingest.Workers)
	setInt(&cfg.IngestTargetTokens, fc.Ingest.TargetTokens)
	setInt(&cfg.IngestOverlapTokens, fc.Ingest.OverlapTokens)
	setInt(&cfg.IngestBatchSize, fc.Ingest.BatchSize)
	if fc.Ingest.MaxUploadBytes != nil {
		cfg.MaxUploadBytes = *fc.Ingest.MaxUploadBytes
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
