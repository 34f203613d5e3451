package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Protocols the connector knows how to open a mail store over. SMTP is a
// recognized configuration value (it was the historical default) but cannot
// be crawled; ValidateEndpoint rejects it with a configuration error.
const (
	ProtocolIMAP  = "imap"
	ProtocolIMAPS = "imaps"
	ProtocolPOP3  = "pop3"
	ProtocolPOP3S = "pop3s"
	ProtocolSMTP  = "smtp"
)

// Searchable filter attribute names.
const (
	FilterSubject = "subject"
	FilterFrom    = "from"
	FilterTo      = "to"
	FilterBody    = "body"
	FilterFolder  = "folder"
)

// Metadata field names selectable for extraction.
const (
	FieldSubject            = "subject"
	FieldFrom               = "from"
	FieldTo                 = "to"
	FieldBody               = "body"
	FieldDate               = "date"
	FieldAttachmentEncoding = "attachment-encoding"
	FieldAttachmentMIMEType = "attachment-mimetype"
)

// Versioning policies.
const (
	VersioningFingerprint = "fingerprint"
	VersioningConstant    = "constant"
)

type Config struct {
	Endpoint Endpoint    `mapstructure:"endpoint" yaml:"endpoint"`
	Job      JobSpec     `mapstructure:"job" yaml:"job"`
	Crawl    CrawlConfig `mapstructure:"crawl" yaml:"crawl"`
}

// Endpoint describes one configured mailbox endpoint. The password may be
// left empty here and resolved from the environment or the keyring.
type Endpoint struct {
	Server     string            `mapstructure:"server" yaml:"server"`
	Port       int               `mapstructure:"port" yaml:"port"`
	Protocol   string            `mapstructure:"protocol" yaml:"protocol"`
	Username   string            `mapstructure:"username" yaml:"username"`
	Password   string            `mapstructure:"password" yaml:"password"`
	Properties map[string]string `mapstructure:"properties" yaml:"properties,omitempty"`

	// PasswordSource records where the password came from (env, config,
	// keyring); it is informational and never persisted.
	PasswordSource string `mapstructure:"-" yaml:"-"`
}

// Filter is one declarative (attribute, value) search filter. The "folder"
// attribute selects the mailbox folder instead of contributing a predicate.
type Filter struct {
	Name  string `mapstructure:"name" yaml:"name"`
	Value string `mapstructure:"value" yaml:"value"`
}

// JobSpec is the per-job document specification: which messages to seed and
// which metadata fields to extract.
type JobSpec struct {
	Filters    []Filter `mapstructure:"filters" yaml:"filters"`
	Metadata   []string `mapstructure:"metadata" yaml:"metadata"`
	Versioning string   `mapstructure:"versioning" yaml:"versioning"`
}

// CrawlConfig configures the reference host runner.
type CrawlConfig struct {
	JournalPath string `mapstructure:"journal_path" yaml:"journal_path"`
	Schedule    string `mapstructure:"schedule" yaml:"schedule"`
}

func DefaultConfig() Config {
	return Config{
		Endpoint: Endpoint{
			Protocol: ProtocolIMAPS,
		},
		Job: JobSpec{
			Versioning: VersioningFingerprint,
		},
		Crawl: CrawlConfig{
			Schedule: "@every 5m",
		},
	}
}

func ConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func Load() (Config, error) {
	cfg := DefaultConfig()

	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MAILCRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}

	cfg.Endpoint.Protocol = NormalizeProtocol(cfg.Endpoint.Protocol)

	return cfg, nil
}

func Save(cfg Config) (string, error) {
	path, err := ConfigPath()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}

	return path, nil
}

func Redact(cfg Config) Config {
	masked := cfg
	if masked.Endpoint.Password != "" {
		masked.Endpoint.Password = "****"
	}
	return masked
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("endpoint.protocol", cfg.Endpoint.Protocol)
	v.SetDefault("job.versioning", cfg.Job.Versioning)
	v.SetDefault("crawl.schedule", cfg.Crawl.Schedule)
}

// NormalizeProtocol maps UI-facing spellings ("IMAP", "POP3") onto the
// provider keys used internally.
func NormalizeProtocol(protocol string) string {
	return strings.ToLower(strings.TrimSpace(protocol))
}

// NormalizeVersioning resolves the effective versioning policy; the empty
// value means fingerprint.
func NormalizeVersioning(policy string) string {
	switch strings.ToLower(strings.TrimSpace(policy)) {
	case VersioningConstant:
		return VersioningConstant
	default:
		return VersioningFingerprint
	}
}

// DefaultPort returns the conventional port for a protocol, or 0 when the
// protocol is unknown.
func DefaultPort(protocol string) int {
	switch NormalizeProtocol(protocol) {
	case ProtocolIMAP:
		return 143
	case ProtocolIMAPS:
		return 993
	case ProtocolPOP3:
		return 110
	case ProtocolPOP3S:
		return 995
	default:
		return 0
	}
}

// SupportsFolders reports whether the protocol has a folder concept. POP3
// exposes a single mailbox, so the configured folder is ignored there.
func SupportsFolders(protocol string) bool {
	switch NormalizeProtocol(protocol) {
	case ProtocolIMAP, ProtocolIMAPS:
		return true
	default:
		return false
	}
}

func ValidateEndpoint(ep Endpoint) error {
	if ep.Server == "" {
		return fmt.Errorf("endpoint.server is required")
	}
	if ep.Username == "" {
		return fmt.Errorf("endpoint.username is required")
	}
	if ep.Password == "" {
		return fmt.Errorf("endpoint.password is required")
	}
	switch NormalizeProtocol(ep.Protocol) {
	case ProtocolIMAP, ProtocolIMAPS, ProtocolPOP3, ProtocolPOP3S:
		return nil
	case ProtocolSMTP:
		return fmt.Errorf("endpoint.protocol: a mail store cannot be crawled over smtp")
	case "":
		return fmt.Errorf("endpoint.protocol is required")
	default:
		return fmt.Errorf("endpoint.protocol: unknown protocol %q", ep.Protocol)
	}
}

func ValidateJob(spec JobSpec) error {
	for _, f := range spec.Filters {
		switch strings.ToLower(f.Name) {
		case FilterSubject, FilterFrom, FilterTo, FilterBody, FilterFolder:
		default:
			return fmt.Errorf("job.filters: unknown filter attribute %q", f.Name)
		}
	}
	for _, m := range spec.Metadata {
		switch strings.ToLower(m) {
		case FieldSubject, FieldFrom, FieldTo, FieldBody, FieldDate,
			FieldAttachmentEncoding, FieldAttachmentMIMEType:
		default:
			return fmt.Errorf("job.metadata: unknown metadata field %q", m)
		}
	}
	switch spec.Versioning {
	case VersioningFingerprint, VersioningConstant, "":
	default:
		return fmt.Errorf("job.versioning: must be %q or %q", VersioningFingerprint, VersioningConstant)
	}
	return nil
}

func Validate(cfg Config) error {
	if err := ValidateEndpoint(cfg.Endpoint); err != nil {
		return err
	}
	return ValidateJob(cfg.Job)
}
