package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig holds the HTTP surface configuration. Values come from an
// optional YAML file, a .env file and SPEECHFLOW_* environment variables, in
// increasing order of precedence.
type ServerConfig struct {
	ListenAddr        string   `mapstructure:"listen_addr"`
	UploadDir         string   `mapstructure:"upload_dir"`
	MaxUploadBytes    int64    `mapstructure:"max_upload_bytes"`
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
	OutputDir         string   `mapstructure:"output_dir"`
	EventBufferSize   int      `mapstructure:"event_buffer_size"`
}

// LoadServer reads the server configuration. configFile may be empty, in
// which case only defaults, .env and environment variables apply.
func LoadServer(configFile string) (ServerConfig, error) {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}

	v := viper.New()
	v.SetDefault("listen_addr", ":8090")
	v.SetDefault("upload_dir", os.TempDir())
	v.SetDefault("max_upload_bytes", int64(512<<20))
	v.SetDefault("allowed_extensions", []string{".mp3", ".wav", ".flac", ".ogg", ".m4a"})
	v.SetDefault("output_dir", "")
	v.SetDefault("event_buffer_size", 500)

	v.SetEnvPrefix("SPEECHFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return ServerConfig{}, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("unmarshal server config: %w", err)
	}
	return cfg, nil
}

// AllowsExtension reports whether the lowercased extension (dot included) is
// accepted for upload.
func (c ServerConfig) AllowsExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, allowed := range c.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
