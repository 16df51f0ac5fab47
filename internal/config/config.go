package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var configLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	configLogger = l
}

// Config represents the complete configuration structure
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Server   ServerConfig      `yaml:"server"`
	Storage  StorageConfig     `yaml:"storage"`
	Drafts   DraftsConfig      `yaml:"drafts"`
	Images   ImagesConfig      `yaml:"images"`
	Editor   EditorConfig      `yaml:"editor"`
	Markdown MarkdownConfig    `yaml:"markdown"`
	Theme    ThemeConfig       `yaml:"theme"`
	Logging  LoggingConfig     `yaml:"logging"`
}

type ApplicationConfig struct {
	Name    string `yaml:"name" default:"MarkEdit" validate:"required"`
	DataDir string `yaml:"data_dir" default:"data" validate:"required"`
}

type ServerConfig struct {
	Host string `yaml:"host" default:"127.0.0.1"`
	Port string `yaml:"port" default:"12600" validate:"required,numeric"`
}

type StorageConfig struct {
	Backend     string   `yaml:"backend" default:"sqlite" validate:"oneof=sqlite fs s3"`
	SQLitePath  string   `yaml:"sqlite_path" default:"markedit.db"`
	Dir         string   `yaml:"dir" default:"documents"`
	Compression string   `yaml:"compression" default:"zstd" validate:"oneof=zstd gzip none"`
	S3          S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket   string `yaml:"bucket" default:""`
	Prefix   string `yaml:"prefix" default:"documents/"`
	Endpoint string `yaml:"endpoint" default:""`
	Region   string `yaml:"region" default:"us-east-1"`
}

// DraftsConfig selects the draft snapshot store. An empty backend follows the document store.
type DraftsConfig struct {
	Backend string `yaml:"backend" default:"" validate:"omitempty,oneof=memory fs sqlite"`
	Dir     string `yaml:"dir" default:"drafts"`
}

// ImagesConfig locates attached images. MaxSize takes human sizes such as "10 MiB".
type ImagesConfig struct {
	Dir     string `yaml:"dir" default:"images"`
	MaxSize string `yaml:"max_size" default:"10 MiB" validate:"required"`
}

type EditorConfig struct {
	PreviewDebounce  time.Duration `yaml:"preview_debounce" default:"150ms"`
	DraftDebounce    time.Duration `yaml:"draft_debounce" default:"5s"`
	AutosaveDelay    time.Duration `yaml:"autosave_delay" default:"60s"`
	ScrollCooldown   time.Duration `yaml:"scroll_cooldown" default:"100ms"`
	DefaultTitle     string        `yaml:"default_title" default:"Untitled" validate:"required"`
	ImportExtensions []string      `yaml:"import_extensions" default:".md,.markdown,.txt"`
}

type MarkdownConfig struct {
	Renderer  string `yaml:"renderer" default:"goldmark" validate:"oneof=goldmark classic"`
	Breaks    bool   `yaml:"breaks" default:"true"`
	Highlight bool   `yaml:"highlight" default:"true"`
	Emoji     bool   `yaml:"emoji" default:"true"`
	Callouts  bool   `yaml:"callouts" default:"true"`
	Sanitize  bool   `yaml:"sanitize" default:"true"`
	CacheSize int    `yaml:"cache_size" default:"256" validate:"min=0"`
}

type ThemeConfig struct {
	Default            string       `yaml:"default" default:"dark" validate:"oneof=dark light"`
	SyntaxHighlighting SyntaxConfig `yaml:"syntax_highlighting"`
}

type SyntaxConfig struct {
	DefaultDark  string `yaml:"default_dark" default:"gruvbox"`
	DefaultLight string `yaml:"default_light" default:"catppuccin-latte"`
}

type LoggingConfig struct {
	Level string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
}

var AppConfig *Config

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns a configuration with every default applied.
func Default() *Config {
	config := &Config{}
	applyDefaults(config)
	return config
}

func LoadConfig(path string) error {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		// If file doesn't exist, just use defaults
		configLogger.Info().Str("path", path).Msg("Config file not found, using defaults")
		AppConfig = config
		return nil
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return err
	}

	AppConfig = config
	return nil
}

// Validate checks field constraints and that every editor delay is positive.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	delays := map[string]time.Duration{
		"editor.preview_debounce": c.Editor.PreviewDebounce,
		"editor.draft_debounce":   c.Editor.DraftDebounce,
		"editor.autosave_delay":   c.Editor.AutosaveDelay,
		"editor.scroll_cooldown":  c.Editor.ScrollCooldown,
	}
	for name, d := range delays {
		if d <= 0 {
			return fmt.Errorf("invalid configuration: %s must be positive, got %s", name, d)
		}
	}

	if _, err := c.ImageLimit(); err != nil {
		return fmt.Errorf("invalid configuration: images.max_size: %w", err)
	}

	if c.Storage.Backend == StorageS3 && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("invalid configuration: storage.s3.bucket is required for the s3 backend")
	}
	return nil
}

// Path resolves p against the data directory unless it is absolute or an in-memory sqlite name.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || strings.HasPrefix(p, ":memory:") || strings.HasPrefix(p, "file:") {
		return p
	}
	return filepath.Join(c.App.DataDir, p)
}

// ImageLimit parses Images.MaxSize into bytes.
func (c *Config) ImageLimit() (int64, error) {
	n, err := humanize.ParseBytes(c.Images.MaxSize)
	if err != nil {
		return 0, err
	}
	if n == 0 || n > math.MaxInt64 {
		return 0, fmt.Errorf("size %q out of range", c.Images.MaxSize)
	}
	return int64(n), nil
}

// DraftBackend returns the configured draft store, following the document store when unset.
func (c *Config) DraftBackend() string {
	if c.Drafts.Backend != "" {
		return c.Drafts.Backend
	}
	switch c.Storage.Backend {
	case StorageSQLite:
		return DraftsSQLite
	case StorageFS:
		return DraftsFS
	default:
		return DraftsFS
	}
}

func ApplyDefaults(config interface{}) {
	applyDefaults(config)
}

var durationType = reflect.TypeOf(time.Duration(0))

func applyDefaults(config interface{}) {
	v := reflect.ValueOf(config)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return
	}

	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.IsValid() || !field.CanSet() {
			continue
		}

		// Recursively apply defaults to nested structs
		if field.Kind() == reflect.Struct {
			applyDefaults(field.Addr().Interface())
			continue
		}

		defaultValue := fieldType.Tag.Get("default")
		if defaultValue == "" {
			continue
		}

		if field.Type() == durationType {
			if val, err := time.ParseDuration(defaultValue); err == nil {
				field.SetInt(int64(val))
			}
			continue
		}

		switch field.Kind() {
		case reflect.String:
			field.SetString(defaultValue)
		case reflect.Bool:
			if val, err := strconv.ParseBool(defaultValue); err == nil {
				field.SetBool(val)
			}
		case reflect.Int, reflect.Int64:
			if val, err := strconv.ParseInt(defaultValue, 10, 64); err == nil {
				field.SetInt(val)
			}
		case reflect.Float64:
			if val, err := strconv.ParseFloat(defaultValue, 64); err == nil {
				field.SetFloat(val)
			}
		case reflect.Slice:
			if field.Len() == 0 && field.Type().Elem().Kind() == reflect.String {
				parts := strings.Split(defaultValue, ",")
				slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
				for j, part := range parts {
					slice.Index(j).SetString(strings.TrimSpace(part))
				}
				field.Set(slice)
			}
		default:
			configLogger.Warn().
				Str("field_name", fieldType.Name).
				Str("field_type", field.Kind().String()).
				Msg("Unsupported field type for default value")
		}
	}
}
