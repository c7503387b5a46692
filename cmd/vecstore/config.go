package main

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pkg/errors"

	"github.com/roylkng/genai-vectors/core"
	"github.com/roylkng/genai-vectors/slice"
	"github.com/roylkng/genai-vectors/store"
)

// processConfig is the ambient process-level configuration the
// "Environment" paragraph describes: object-store endpoint/credentials,
// slice format selector, and the row/age/shard tunables. It is not part
// of any index's persisted config.json (that is core/meta.Config).
type processConfig struct {
	S3 struct {
		Endpoint        string `yaml:"endpoint"`
		Region          string `yaml:"region"`
		Bucket          string `yaml:"bucket"`
		AccessKeyID     string `yaml:"access_key_id"`
		SecretAccessKey string `yaml:"secret_access_key"`
		ForcePathStyle  bool   `yaml:"force_path_style"`
	} `yaml:"s3"`

	SliceFormat string `yaml:"slice_format"`
	RowLimit    int    `yaml:"row_limit"`
	AgeLimit    string `yaml:"age_limit"`
	ShardMax    int    `yaml:"shard_max"`

	SweepInterval string `yaml:"sweep_interval"`
	HealthAddr    string `yaml:"health_addr"`
}

func defaultConfig() *processConfig {
	c := &processConfig{}
	c.SliceFormat = string(slice.FormatJSONLines)
	c.RowLimit = core.DefaultRowLimit
	c.AgeLimit = core.DefaultAgeLimit.String()
	c.ShardMax = core.DefaultShardMax
	c.SweepInterval = "10s"
	c.HealthAddr = ":9640"
	return c
}

// loadConfig reads a YAML file if path is non-empty, then applies
// environment-variable overrides, mirroring AIStore's layered
// flags-then-config-file-then-env approach.
func loadConfig(path string) (*processConfig, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *processConfig) {
	if v := os.Getenv("VECSTORE_S3_ENDPOINT"); v != "" {
		cfg.S3.Endpoint = v
	}
	if v := os.Getenv("VECSTORE_S3_REGION"); v != "" {
		cfg.S3.Region = v
	}
	if v := os.Getenv("VECSTORE_S3_BUCKET"); v != "" {
		cfg.S3.Bucket = v
	}
	if v := os.Getenv("VECSTORE_S3_ACCESS_KEY_ID"); v != "" {
		cfg.S3.AccessKeyID = v
	}
	if v := os.Getenv("VECSTORE_S3_SECRET_ACCESS_KEY"); v != "" {
		cfg.S3.SecretAccessKey = v
	}
	if v := os.Getenv("SLICE_FORMAT"); v != "" {
		cfg.SliceFormat = v
	}
	if v := os.Getenv("ROW_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RowLimit = n
		}
	}
	if v := os.Getenv("AGE_LIMIT"); v != "" {
		cfg.AgeLimit = v
	}
	if v := os.Getenv("SHARD_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ShardMax = n
		}
	}
}

func (c *processConfig) ageLimit() time.Duration {
	d, err := time.ParseDuration(c.AgeLimit)
	if err != nil || d <= 0 {
		return core.DefaultAgeLimit
	}
	return d
}

func (c *processConfig) sweepInterval() time.Duration {
	d, err := time.ParseDuration(c.SweepInterval)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

func (c *processConfig) sliceFormat() slice.Format {
	if c.SliceFormat == string(slice.FormatColumnar) {
		return slice.FormatColumnar
	}
	return slice.FormatJSONLines
}

func (c *processConfig) newAdapter() store.Adapter {
	return store.NewS3Adapter(store.S3Config{
		AccessKeyID:     c.S3.AccessKeyID,
		SecretAccessKey: c.S3.SecretAccessKey,
		Region:          c.S3.Region,
		Endpoint:        c.S3.Endpoint,
		Bucket:          c.S3.Bucket,
		ForcePathStyle:  c.S3.ForcePathStyle,
	})
}
