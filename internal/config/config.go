package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// GitHubSourceConfig configures the issue-tracker connector.
type GitHubSourceConfig struct {
	Owner    string   `yaml:"owner"`
	Repo     string   `yaml:"repo"`
	Labels   []string `yaml:"labels"`
	PageSize int      `yaml:"page_size"` // default 100
	// ClosePassed closes upstream issues whose event date has passed.
	ClosePassed bool          `yaml:"close_passed"`
	Delay       time.Duration `yaml:"delay"` // between result pages
}

// MeetupSourceConfig configures the meetup-style connector.
type MeetupSourceConfig struct {
	BaseURL       string        `yaml:"base_url"`
	Category      int           `yaml:"category"`
	Country       string        `yaml:"country"` // lowercase ISO code, e.g. "se"
	MinMembers    int           `yaml:"min_members"`
	ExcludeGroups []string      `yaml:"exclude_groups"`
	Delay         time.Duration `yaml:"delay"` // between per-city queries
}

// EventbriteSourceConfig configures the eventbrite API connector.
type EventbriteSourceConfig struct {
	BaseURL  string `yaml:"base_url"`
	Category string `yaml:"category"`
	Query    string `yaml:"query"`    // country name used as search query
	Timezone string `yaml:"timezone"` // country zone fragment, e.g. "Stockholm"
}

// EventbriteHTMLSourceConfig configures the scraped-HTML connector.
type EventbriteHTMLSourceConfig struct {
	URL     string        `yaml:"url"`
	Exclude []string      `yaml:"exclude"` // event links to skip, query strings ignored
	Delay   time.Duration `yaml:"delay"`   // between result pages
}

// SourceConfig is a tagged variant selecting one connector.
type SourceConfig struct {
	Type           string                     `yaml:"type"` // github | meetup | eventbrite | eventbrite_html
	GitHub         GitHubSourceConfig         `yaml:"github"`
	Meetup         MeetupSourceConfig         `yaml:"meetup"`
	Eventbrite     EventbriteSourceConfig     `yaml:"eventbrite"`
	EventbriteHTML EventbriteHTMLSourceConfig `yaml:"eventbrite_html"`
}

// GeoConfig configures city-name enrichment.
type GeoConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Country   string        `yaml:"country"` // query qualifier, e.g. "SE"
	Skip      []string      `yaml:"skip"`    // already-canonical city names, no lookup
	CachePath string        `yaml:"cache_path"`
	Delay     time.Duration `yaml:"delay"` // before each lookup
}

// StoreConfig identifies the remote repository the artifacts are written to.
type StoreConfig struct {
	Owner        string `yaml:"owner"`
	Repo         string `yaml:"repo"`
	Branch       string `yaml:"branch"`
	EventsPath   string `yaml:"events_path"`
	CalendarPath string `yaml:"calendar_path"`
	FeedPath     string `yaml:"feed_path"`
	FeedDir      string `yaml:"feed_dir"` // per-city feeds live here
	SiteURL      string `yaml:"site_url"`
	Domain       string `yaml:"domain"` // calendar prodid domain
}

// SocialConfig configures the announcement command.
type SocialConfig struct {
	Hashtag   string            `yaml:"hashtag"`
	Cities    map[string]string `yaml:"cities"` // lowercase city -> custom suffix
	RedisAddr string            `yaml:"redis_addr"`
	APIURL    string            `yaml:"api_url"`
}

// Config is the top-level run configuration.
type Config struct {
	Sources []SourceConfig `yaml:"sources"`
	Geo     GeoConfig      `yaml:"geo"`
	Store   StoreConfig    `yaml:"store"`
	Social  SocialConfig   `yaml:"social"`
	Timeout time.Duration  `yaml:"timeout"` // per upstream request
}

// Secrets holds credentials. They never live in the config file; the CLI
// loads them from the environment (optionally via a .env file).
type Secrets struct {
	GitHubToken     string
	EventbriteToken string
	LocationIQToken string
	ConsumerKey     string
	ConsumerSecret  string
	AccessToken     string
	AccessSecret    string
}

// SecretsFromEnv reads all credentials from the environment.
func SecretsFromEnv() Secrets {
	return Secrets{
		GitHubToken:     os.Getenv("GITHUB_TOKEN"),
		EventbriteToken: os.Getenv("EVENTBRITE_TOKEN"),
		LocationIQToken: os.Getenv("LOCATIONIQ_TOKEN"),
		ConsumerKey:     os.Getenv("TWITTER_CONSUMER_KEY"),
		ConsumerSecret:  os.Getenv("TWITTER_CONSUMER_SECRET"),
		AccessToken:     os.Getenv("TWITTER_ACCESS_TOKEN"),
		AccessSecret:    os.Getenv("TWITTER_ACCESS_SECRET"),
	}
}

// Normalize fills in missing values with defaults so partial configs behave.
func (c *Config) Normalize() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	for i := range c.Sources {
		s := &c.Sources[i]
		if s.GitHub.PageSize <= 0 {
			s.GitHub.PageSize = 100
		}
		if s.GitHub.Delay <= 0 {
			s.GitHub.Delay = 3 * time.Second
		}
		if s.Meetup.MinMembers <= 0 {
			s.Meetup.MinMembers = 10
		}
		if s.Meetup.Delay <= 0 {
			s.Meetup.Delay = 3 * time.Second
		}
		if s.EventbriteHTML.Delay <= 0 {
			s.EventbriteHTML.Delay = 10 * time.Second
		}
	}
	if c.Geo.Delay <= 0 {
		c.Geo.Delay = 5 * time.Second
	}
	if c.Geo.CachePath == "" {
		c.Geo.CachePath = "cities.json"
	}
	if c.Store.Branch == "" {
		c.Store.Branch = "master"
	}
	if c.Store.EventsPath == "" {
		c.Store.EventsPath = "events.json"
	}
	if c.Store.CalendarPath == "" {
		c.Store.CalendarPath = "calendar.ics"
	}
	if c.Store.FeedPath == "" {
		c.Store.FeedPath = "rss.xml"
	}
	if c.Store.FeedDir == "" {
		c.Store.FeedDir = "feeds"
	}
}

// Validate checks the parts every run needs. Per-source credential checks
// happen in the CLI, where a missing token is fatal at startup.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return errors.New("no sources configured")
	}
	for _, s := range c.Sources {
		switch s.Type {
		case "github":
			if s.GitHub.Owner == "" || s.GitHub.Repo == "" {
				return errors.New("github source needs owner and repo")
			}
		case "meetup":
			if s.Meetup.Country == "" {
				return errors.New("meetup source needs a country")
			}
			if s.Meetup.Category <= 0 {
				return errors.New("meetup source needs a category")
			}
		case "eventbrite":
			if s.Eventbrite.Query == "" {
				return errors.New("eventbrite source needs a query")
			}
			if s.Eventbrite.Category == "" {
				return errors.New("eventbrite source needs a category")
			}
		case "eventbrite_html":
			if s.EventbriteHTML.URL == "" {
				return errors.New("eventbrite_html source needs a url")
			}
		default:
			return fmt.Errorf("unknown source type: %q", s.Type)
		}
	}
	if c.Store.Owner == "" || c.Store.Repo == "" {
		return errors.New("store needs owner and repo")
	}
	return nil
}

// Load reads and normalizes the YAML configuration at path.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
