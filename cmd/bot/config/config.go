// Package config загружает конфигурацию бота из bot_config.yml, .env и переменных окружения.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"telegram-relay-bot/internal/domain"
)

// BotConfig содержит параметры Telegram-бота.
type BotConfig struct {
	Token                 string `yaml:"token"`
	PollingTimeoutSeconds int    `yaml:"polling_timeout_seconds"`
	SendTimeoutSeconds    int    `yaml:"send_timeout_seconds"`
	MaxParallelSends      int    `yaml:"max_parallel_sends"` // 0 - без ограничений
}

// WebhookConfig содержит параметры приема обновлений через вебхук.
// Если URL пуст, бот работает через long polling.
type WebhookConfig struct {
	URL        string `yaml:"url"`
	ListenAddr string `yaml:"listen_addr"`
	CertPEM    string `yaml:"cert_pem"`
	CertKey    string `yaml:"cert_key"`
	// UploadCert загружает cert_pem в Telegram (самоподписанный сертификат).
	UploadCert bool `yaml:"upload_cert"`
}

// RegistryConfig описывает хранилище реестра.
type RegistryConfig struct {
	Driver string `yaml:"driver"` // file, badger
	Path   string `yaml:"path"`
}

// UpdatesConfig содержит параметры обработки обновлений и сверки.
type UpdatesConfig struct {
	QueueSize              int `yaml:"queue_size"`
	DedupeTTLMinutes       int `yaml:"dedupe_ttl_minutes"`
	ProbeConcurrency       int `yaml:"probe_concurrency"`
	ProbeTimeoutSeconds    int `yaml:"probe_timeout_seconds"`
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds"`
}

// LoggingConfig содержит конфигурацию логирования.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

var validate = validator.New()

// SeedConfig — начальные админы и чаты для пустого реестра.
// ID обязательны и уникальны в пределах списка.
type SeedConfig struct {
	Admins []domain.Admin `yaml:"admins" validate:"unique=ID,dive"`
	Chats  []domain.Chat  `yaml:"chats" validate:"unique=ID,dive"`
}

type seedChat struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Authorized *bool  `yaml:"authorized"`
}

// UnmarshalYAML разбирает секцию seed. Чаты без поля authorized
// считаются авторизованными, как и чаты из TG_CHATS.
func (s *SeedConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw struct {
		Admins []domain.Admin `yaml:"admins"`
		Chats  []seedChat     `yaml:"chats"`
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}

	s.Admins = raw.Admins
	s.Chats = nil
	for _, c := range raw.Chats {
		authorized := true
		if c.Authorized != nil {
			authorized = *c.Authorized
		}
		s.Chats = append(s.Chats, domain.Chat{ID: c.ID, Name: domain.ChatLabel(c.ID, c.Name), Authorized: authorized})
	}
	return nil
}

// Config является оберткой для соответствия структуре YAML файла.
type Config struct {
	Bot      BotConfig      `yaml:"bot"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Registry RegistryConfig `yaml:"registry"`
	Updates  UpdatesConfig  `yaml:"updates"`
	Logging  LoggingConfig  `yaml:"logging"`
	Seed     SeedConfig     `yaml:"seed"`
}

// env — переопределения из окружения.
type env struct {
	Token        string `envconfig:"TG_BOT_TOKEN"`
	WebhookURL   string `envconfig:"WEBHOOK_URL"`
	CertPEM      string `envconfig:"CERT_PEM"`
	CertKey      string `envconfig:"CERT_KEY"`
	Admins       string `envconfig:"TG_ADMINS"`
	Chats        string `envconfig:"TG_CHATS"`
	RegistryPath string `envconfig:"REGISTRY_PATH"`
	LogLevel     string `envconfig:"LOG_LEVEL"`
}

// Load загружает конфигурацию. Отсутствующий файл допустим: тогда все
// значения берутся из окружения и значений по умолчанию.
// Относительные пути сертификатов разрешаются от каталога файла конфигурации.
func Load(filename string) (*Config, error) {
	// .env не обязателен
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(filename)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal bot config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read bot config file %s: %w", filename, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	cfg.resolvePaths(filepath.Dir(filename))
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	var e env
	if err := envconfig.Process("", &e); err != nil {
		return fmt.Errorf("failed to process environment: %w", err)
	}

	setIfNotEmpty(&c.Bot.Token, e.Token)
	setIfNotEmpty(&c.Webhook.URL, e.WebhookURL)
	setIfNotEmpty(&c.Webhook.CertPEM, e.CertPEM)
	setIfNotEmpty(&c.Webhook.CertKey, e.CertKey)
	setIfNotEmpty(&c.Registry.Path, e.RegistryPath)
	setIfNotEmpty(&c.Logging.Level, e.LogLevel)

	if e.Admins != "" {
		pairs, err := parsePairs(e.Admins)
		if err != nil {
			return fmt.Errorf("TG_ADMINS: %w", err)
		}
		c.Seed.Admins = c.Seed.Admins[:0]
		for _, p := range pairs {
			c.Seed.Admins = append(c.Seed.Admins, domain.Admin{ID: p[0], Name: p[1]})
		}
	}
	if e.Chats != "" {
		pairs, err := parsePairs(e.Chats)
		if err != nil {
			return fmt.Errorf("TG_CHATS: %w", err)
		}
		c.Seed.Chats = c.Seed.Chats[:0]
		for _, p := range pairs {
			c.Seed.Chats = append(c.Seed.Chats, domain.Chat{ID: p[0], Name: domain.ChatLabel(p[0], p[1]), Authorized: true})
		}
	}
	return nil
}

func setIfNotEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// parsePairs разбирает список вида "id:name,id2:name2". Имя необязательно.
func parsePairs(s string) ([][2]string, error) {
	var out [][2]string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		id, name, _ := strings.Cut(item, ":")
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("empty id in %q", item)
		}
		out = append(out, [2]string{id, strings.TrimSpace(name)})
	}
	return out, nil
}

func (c *Config) applyDefaults() {
	if c.Bot.PollingTimeoutSeconds == 0 {
		c.Bot.PollingTimeoutSeconds = DefaultPollingTimeoutSeconds
	}
	if c.Bot.SendTimeoutSeconds == 0 {
		c.Bot.SendTimeoutSeconds = DefaultSendTimeoutSeconds
	}
	if c.Webhook.ListenAddr == "" {
		c.Webhook.ListenAddr = DefaultListenAddr
	}
	if c.Registry.Driver == "" {
		c.Registry.Driver = DefaultRegistryDriver
	}
	if c.Registry.Path == "" {
		c.Registry.Path = DefaultRegistryPath
	}
	if c.Updates.QueueSize == 0 {
		c.Updates.QueueSize = DefaultQueueSize
	}
	if c.Updates.DedupeTTLMinutes == 0 {
		c.Updates.DedupeTTLMinutes = DefaultDedupeTTLMinutes
	}
	if c.Updates.ProbeConcurrency == 0 {
		c.Updates.ProbeConcurrency = DefaultProbeConcurrency
	}
	if c.Updates.ProbeTimeoutSeconds == 0 {
		c.Updates.ProbeTimeoutSeconds = DefaultProbeTimeoutSeconds
	}
	if c.Updates.ShutdownTimeoutSeconds == 0 {
		c.Updates.ShutdownTimeoutSeconds = DefaultShutdownTimeoutSeconds
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func (c *Config) resolvePaths(dir string) {
	c.Webhook.CertPEM = resolve(dir, c.Webhook.CertPEM)
	c.Webhook.CertKey = resolve(dir, c.Webhook.CertKey)
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// UseWebhook сообщает, настроен ли прием обновлений через вебхук.
func (c *Config) UseWebhook() bool {
	return c.Webhook.URL != ""
}

// WebhookPath возвращает путь из URL вебхука, на котором слушает сервер.
func (c *Config) WebhookPath() string {
	u, err := url.Parse(c.Webhook.URL)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

// TLSEnabled сообщает, поднимать ли HTTPS-листенер.
func (c *Config) TLSEnabled() bool {
	return c.Webhook.CertPEM != "" && c.Webhook.CertKey != ""
}

const minSecretPathLen = 16

// Secrets возвращает значения, которые нужно маскировать в логах.
func (c *Config) Secrets() []string {
	secrets := []string{c.Bot.Token}
	if c.UseWebhook() {
		// секретом считается только длинный последний сегмент пути
		seg := path.Base(strings.TrimRight(c.WebhookPath(), "/"))
		if len(seg) >= minSecretPathLen {
			secrets = append(secrets, seg)
		}
	}
	return secrets
}

// SendTimeout возвращает таймаут одной пересылки.
func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.Bot.SendTimeoutSeconds) * time.Second
}

// ProbeTimeout возвращает таймаут одной проверки членства.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Updates.ProbeTimeoutSeconds) * time.Second
}

// DedupeTTL возвращает время хранения update_id.
func (c *Config) DedupeTTL() time.Duration {
	return time.Duration(c.Updates.DedupeTTLMinutes) * time.Minute
}

// pollingGrace — запас сверх таймаута long polling на сам HTTP-обмен.
const pollingGrace = 10 * time.Second

// APITimeout возвращает таймаут одного HTTP-запроса к Bot API.
// Клиент общий для отправок и getUpdates: таймаут не меньше таймаута
// long polling с запасом.
func (c *Config) APITimeout() time.Duration {
	return max(c.SendTimeout(), c.ProbeTimeout(),
		time.Duration(c.Bot.PollingTimeoutSeconds)*time.Second+pollingGrace)
}

// ShutdownTimeout возвращает таймаут корректного завершения.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Updates.ShutdownTimeoutSeconds) * time.Second
}

// Validate проверяет корректность конфигурации без обращения к файловой системе.
func (c *Config) Validate() error {
	if c.Bot.Token == "" || c.Bot.Token == "YOUR_TELEGRAM_BOT_TOKEN" {
		return fmt.Errorf("bot.token is not configured")
	}
	if c.Bot.PollingTimeoutSeconds < 0 {
		return fmt.Errorf("bot.polling_timeout_seconds must be non-negative")
	}
	if c.Bot.SendTimeoutSeconds <= 0 {
		return fmt.Errorf("bot.send_timeout_seconds must be positive")
	}
	if c.Bot.MaxParallelSends < 0 {
		return fmt.Errorf("bot.max_parallel_sends must be non-negative (0 for unlimited)")
	}

	if c.UseWebhook() {
		u, err := url.Parse(c.Webhook.URL)
		if err != nil || u.Scheme != "https" || u.Host == "" {
			return fmt.Errorf("webhook.url must be an absolute https URL")
		}
	}
	if (c.Webhook.CertPEM == "") != (c.Webhook.CertKey == "") {
		return fmt.Errorf("webhook.cert_pem and webhook.cert_key must be set together")
	}
	if c.Webhook.UploadCert && c.Webhook.CertPEM == "" {
		return fmt.Errorf("webhook.upload_cert requires webhook.cert_pem")
	}

	switch c.Registry.Driver {
	case "file", "badger":
	default:
		return fmt.Errorf("registry.driver must be one of: file, badger")
	}
	if c.Registry.Path == "" {
		return fmt.Errorf("registry.path cannot be empty")
	}

	if c.Updates.QueueSize <= 0 {
		return fmt.Errorf("updates.queue_size must be positive")
	}
	if c.Updates.DedupeTTLMinutes <= 0 {
		return fmt.Errorf("updates.dedupe_ttl_minutes must be positive")
	}
	if c.Updates.ProbeConcurrency <= 0 {
		return fmt.Errorf("updates.probe_concurrency must be positive")
	}
	if c.Updates.ProbeTimeoutSeconds <= 0 {
		return fmt.Errorf("updates.probe_timeout_seconds must be positive")
	}
	if c.Updates.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("updates.shutdown_timeout_seconds must be positive")
	}

	if err := validate.Struct(c.Seed); err != nil {
		return fmt.Errorf("invalid seed entries (ids must be non-empty and unique): %w", err)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be one of: json, text")
	}
	return nil
}

// ValidateFull дополнительно проверяет наличие файлов сертификатов и каталога реестра.
func (c *Config) ValidateFull() error {
	if err := c.Validate(); err != nil {
		return err
	}
	for _, p := range []string{c.Webhook.CertPEM, c.Webhook.CertKey} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("certificate file is not accessible: %w", err)
		}
	}
	dir := filepath.Dir(c.Registry.Path)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("registry directory is not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("registry directory %s is not a directory", dir)
	}
	return nil
}
