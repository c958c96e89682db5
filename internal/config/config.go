package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone   = "UTC"
	minSaveDebounce   = 200 * time.Millisecond
	configPathEnv     = "NEWSGRINDER_CONFIG"
	openAIAPIKeyEnv   = "OPENAI_API_KEY"
	searchAPIKeyEnv   = "SEARCH_API_KEY"
	searchProviderEnv = "SEARCH_PROVIDER"
	storeDriverEnv    = "STORE_DRIVER"
	storeDSNEnv       = "STORE_DSN"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	logLevelEnv       = "LOG_LEVEL"
	saveDebounceEnv   = "SHEETS_SAVE_DEBOUNCE_MS"
	dropOversizeEnv   = "SHEETS_DROP_OVERSIZE"
	verifyModeEnv     = "VERIFY_MODE"
	metricsAddrEnv    = "METRICS_ADDR"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Store         StoreConfig        `yaml:"store"`
	Fetch         FetchConfig        `yaml:"fetch"`
	Browser       BrowserConfig      `yaml:"browser"`
	Verify        VerifyConfig       `yaml:"verify"`
	Agencies      AgencyConfig       `yaml:"agencies"`
	Search        SearchConfig       `yaml:"search"`
	ChatGPT       ChatGPTConfig      `yaml:"chatgpt"`
	RateLimits    RateLimitConfig    `yaml:"rateLimits"`
	Archive       ArchiveConfig      `yaml:"archive"`
	Notifications NotificationConfig `yaml:"notifications"`
	Metrics       MetricsConfig      `yaml:"metrics"`
	Run           RunConfig          `yaml:"run"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Topics        []TopicConfig      `yaml:"topics"`
}

// LoggingConfig controls the console logger and the optional fetch log.
type LoggingConfig struct {
	Level           string `yaml:"level"`
	Format          string `yaml:"format"`
	MaxStringLength int    `yaml:"maxStringLength"`
	FetchLogFile    string `yaml:"fetchLogFile"`
}

// StoreConfig describes the SQL sheet backing the news table.
type StoreConfig struct {
	Driver           string        `yaml:"driver"`
	DSN              string        `yaml:"dsn"`
	MaxCellChars     int           `yaml:"maxCellChars"`
	DropOversize     bool          `yaml:"dropOversize"`
	OversizeLogLimit int           `yaml:"oversizeLogLimit"`
	SaveDebounce     time.Duration `yaml:"saveDebounce"`
}

// FetchConfig tunes the direct fetcher and its fallback transports.
type FetchConfig struct {
	Attempts             int                   `yaml:"attempts"`
	Timeout              time.Duration         `yaml:"timeout"`
	UserAgent            string                `yaml:"userAgent"`
	StatusCooldowns      map[int]time.Duration `yaml:"statusCooldowns"`
	NetworkErrorCooldown time.Duration         `yaml:"networkErrorCooldown"`
	ProxyReaderURL       string                `yaml:"proxyReaderUrl"`
	ArchiveHosts         []string              `yaml:"archiveHosts"`
	ArchiveDelay         time.Duration         `yaml:"archiveDelay"`
	ArchiveCooldown      time.Duration         `yaml:"archiveCooldown"`
	WaybackURL           string                `yaml:"waybackUrl"`
}

// BrowserConfig drives the headless browser fallback.
type BrowserConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Headless          bool          `yaml:"headless"`
	ArchiveHost       string        `yaml:"archiveHost"`
	CaptchaTimeout    time.Duration `yaml:"captchaTimeout"`
	NavigationTimeout time.Duration `yaml:"navigationTimeout"`
}

// VerifyConfig drives the AI match check.
type VerifyConfig struct {
	Mode            string  `yaml:"mode"`
	MinConfidence   float64 `yaml:"minConfidence"`
	ShortThreshold  int     `yaml:"shortThreshold"`
	FailOpen        bool    `yaml:"failOpen"`
	MaxChars        int     `yaml:"maxChars"`
	SummaryMaxChars int     `yaml:"summaryMaxChars"`
	Model           string  `yaml:"model"`
}

// AgencyConfig is the source trust table and its thresholds.
type AgencyConfig struct {
	Levels           map[string]int `yaml:"levels"`
	DefaultLevel     int            `yaml:"defaultLevel"`
	MinLevel         int            `yaml:"minLevel"`
	FallbackMinLevel int            `yaml:"fallbackMinLevel"`
}

// SearchConfig groups the aggregator search and the external provider.
type SearchConfig struct {
	Aggregator AggregatorConfig     `yaml:"aggregator"`
	External   ExternalSearchConfig `yaml:"external"`
}

// AggregatorConfig points at the news aggregator.
type AggregatorConfig struct {
	BaseURL string        `yaml:"baseUrl"`
	Params  string        `yaml:"params"`
	Delay   time.Duration `yaml:"delay"`
}

// ExternalSearchConfig selects a paid search provider.
type ExternalSearchConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Provider   string        `yaml:"provider"`
	APIKey     string        `yaml:"apiKey"`
	MaxResults int           `yaml:"maxResults"`
	Timeout    time.Duration `yaml:"timeout"`
}

// ChatGPTConfig defines how to contact the ChatGPT API.
type ChatGPTConfig struct {
	Endpoint         string        `yaml:"endpoint"`
	Model            string        `yaml:"model"`
	APIKey           string        `yaml:"apiKey"`
	Temperature      float64       `yaml:"temperature"`
	SystemPrompt     string        `yaml:"systemPrompt"`
	Timeout          time.Duration `yaml:"timeout"`
	SummarizeRetries int           `yaml:"summarizeRetries"`
	RetryPause       time.Duration `yaml:"retryPause"`
	TokensPerMinute  int           `yaml:"tokensPerMinute"`
}

// RateLimitConfig spaces calls per channel.
type RateLimitConfig struct {
	URLDecodeDelay     time.Duration `yaml:"urlDecodeDelay"`
	URLDecodeIncrement time.Duration `yaml:"urlDecodeIncrement"`
	URLDecodeMax       time.Duration `yaml:"urlDecodeMax"`
	VerifyDelay        time.Duration `yaml:"verifyDelay"`
}

// ArchiveConfig locates the on-disk article artifacts.
type ArchiveConfig struct {
	Dir string `yaml:"dir"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// MetricsConfig enables the prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// RunConfig tunes one batch run.
type RunConfig struct {
	DecodeAttempts     int           `yaml:"decodeAttempts"`
	DecodeFailurePause time.Duration `yaml:"decodeFailurePause"`
	DigestLimit        int           `yaml:"digestLimit"`
}

// SchedulerConfig defines how often watch mode runs the batch.
type SchedulerConfig struct {
	Interval time.Duration  `yaml:"interval"`
	Timezone string         `yaml:"timezone"`
	location *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// TopicConfig is one entry of the summary taxonomy.
type TopicConfig struct {
	Name string `yaml:"name"`
	ID   int    `yaml:"id"`
	Max  int    `yaml:"max"`
}

// TopicIDs maps topic names to their sort ids.
func (c Config) TopicIDs() map[string]int {
	ids := make(map[string]int, len(c.Topics))
	for _, t := range c.Topics {
		ids[t.Name] = t.ID
	}
	return ids
}

// TopicName returns the configured spelling of topic, or "" when the
// taxonomy does not know it.
func (c Config) TopicName(topic string) string {
	topic = strings.TrimSpace(topic)
	for _, t := range c.Topics {
		if strings.EqualFold(t.Name, topic) {
			return t.Name
		}
	}
	return ""
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else if err := Parse(raw, &cfg); err != nil {
			log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			cfg = defaultConfig()
		}
	}

	cfg.applyEnvOverrides()
	cfg.normalize()
	return cfg
}

// Parse decodes YAML on top of cfg so that absent keys keep their values.
func Parse(raw []byte, cfg *Config) error {
	topics := cfg.Topics
	cfg.Topics = nil
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		cfg.Topics = topics
		return err
	}
	if len(cfg.Topics) == 0 {
		cfg.Topics = topics
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(openAIAPIKeyEnv); v != "" {
		c.ChatGPT.APIKey = v
	}

	if v := os.Getenv(searchAPIKeyEnv); v != "" {
		c.Search.External.APIKey = v
	}

	if v := os.Getenv(searchProviderEnv); v != "" {
		c.Search.External.Provider = v
	}

	if v := os.Getenv(storeDriverEnv); v != "" {
		c.Store.Driver = v
	}

	if v := os.Getenv(storeDSNEnv); v != "" {
		c.Store.DSN = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(saveDebounceEnv); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			c.Store.SaveDebounce = time.Duration(ms) * time.Millisecond
		}
	}

	if v := os.Getenv(dropOversizeEnv); v != "" {
		c.Store.DropOversize = truthy(v)
	}

	if v := os.Getenv(verifyModeEnv); v != "" {
		c.Verify.Mode = v
	}

	if v := os.Getenv(metricsAddrEnv); v != "" {
		c.Metrics.Addr = v
	}
}

func (c *Config) normalize() {
	if c.Store.SaveDebounce < minSaveDebounce {
		c.Store.SaveDebounce = minSaveDebounce
	}
	if c.Fetch.Attempts < 1 {
		c.Fetch.Attempts = 1
	}
	if c.Run.DecodeAttempts < 1 {
		c.Run.DecodeAttempts = 1
	}

	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func truthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text", MaxStringLength: 800},
		Store: StoreConfig{
			Driver:           "sqlite",
			DSN:              "file:newsgrinder.db",
			MaxCellChars:     50000,
			OversizeLogLimit: 20,
			SaveDebounce:     2 * time.Second,
		},
		Fetch: FetchConfig{
			Attempts:  2,
			Timeout:   10 * time.Second,
			UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			StatusCooldowns: map[int]time.Duration{
				401: 10 * time.Minute,
				403: 10 * time.Minute,
				429: 15 * time.Minute,
				500: 2 * time.Minute,
				502: 2 * time.Minute,
				503: 2 * time.Minute,
				504: 2 * time.Minute,
			},
			NetworkErrorCooldown: 2 * time.Minute,
			ProxyReaderURL:       "https://r.jina.ai/",
			ArchiveHosts:         []string{"archive.ph", "archive.is", "archive.today"},
			ArchiveDelay:         5 * time.Second,
			ArchiveCooldown:      10 * time.Minute,
			WaybackURL:           "https://archive.org/wayback/available",
		},
		Browser: BrowserConfig{
			Enabled:           true,
			Headless:          true,
			ArchiveHost:       "archive.ph",
			CaptchaTimeout:    3 * time.Minute,
			NavigationTimeout: 60 * time.Second,
		},
		Verify: VerifyConfig{
			Mode:            "fallback",
			MinConfidence:   0.6,
			ShortThreshold:  1500,
			FailOpen:        true,
			MaxChars:        6000,
			SummaryMaxChars: 200,
			Model:           "gpt-4o",
		},
		Agencies: AgencyConfig{
			Levels: map[string]int{
				"Reuters":                 5,
				"Associated Press":        5,
				"AP News":                 5,
				"Bloomberg":               5,
				"Financial Times":         5,
				"The Wall Street Journal": 5,
				"BBC":                     4,
				"The Guardian":            4,
				"The New York Times":      4,
				"The Washington Post":     4,
				"NPR":                     4,
				"The Economist":           4,
				"CNN":                     3,
				"CNBC":                    3,
				"Politico":                3,
				"Axios":                   3,
				"The Hill":                3,
				"Al Jazeera":              3,
				"Fox News":                3,
				"Newsweek":                2,
				"New York Post":           2,
				"Daily Mail":              1,
			},
			DefaultLevel:     2,
			MinLevel:         3,
			FallbackMinLevel: 1,
		},
		Search: SearchConfig{
			Aggregator: AggregatorConfig{
				BaseURL: "https://news.google.com",
				Params:  "hl=en-US&gl=US&ceid=US:en",
				Delay:   2 * time.Second,
			},
			External: ExternalSearchConfig{
				Enabled:    true,
				Provider:   "serpapi",
				MaxResults: 6,
				Timeout:    10 * time.Second,
			},
		},
		ChatGPT: ChatGPTConfig{
			Endpoint:         "https://api.openai.com/v1/chat/completions",
			Model:            "gpt-4o",
			Temperature:      0.2,
			SystemPrompt:     "You are a news summarizer. Return concise results.",
			Timeout:          60 * time.Second,
			SummarizeRetries: 3,
			RetryPause:       30 * time.Second,
			TokensPerMinute:  30000,
		},
		RateLimits: RateLimitConfig{
			URLDecodeDelay:     30 * time.Second,
			URLDecodeIncrement: time.Second,
			URLDecodeMax:       2 * time.Minute,
			VerifyDelay:        time.Second,
		},
		Archive: ArchiveConfig{Dir: "articles"},
		Run: RunConfig{
			DecodeAttempts:     5,
			DecodeFailurePause: 5 * time.Minute,
			DigestLimit:        20,
		},
		Scheduler: SchedulerConfig{Interval: 6 * time.Hour, Timezone: defaultTimezone},
		Topics: []TopicConfig{
			{Name: "Big picture", ID: 1, Max: 12},
			{Name: "America", ID: 2, Max: 30},
			{Name: "Left Is losing it", ID: 3, Max: 6},
			{Name: "Ukraine", ID: 4, Max: 24},
			{Name: "Гадание на кофе", ID: 5, Max: 9},
			{Name: "World news", ID: 6, Max: 24},
			{Name: "Маразм крепчал", ID: 7, Max: 6},
			{Name: "Tech News", ID: 8, Max: 6},
			{Name: "Crazy news", ID: 9, Max: 6},
		},
	}
}
