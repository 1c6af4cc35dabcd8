package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

const (
	FeedSourceAPI = "api"
	FeedSourceRSS = "rss"

	envPrefix = "CHEERILY_"

	defaultRedirectURI         = "http://127.0.0.1:8787/callback"
	defaultAuthURL             = "https://www.reddit.com/api/v1/authorize.compact"
	defaultTokenURL            = "https://www.reddit.com/api/v1/access_token"
	defaultRevokeURL           = "https://www.reddit.com/api/v1/revoke_token"
	defaultFeedURL             = "https://oauth.reddit.com/r/aww/hot"
	defaultRSSURL              = "https://www.reddit.com/r/aww/.rss"
	defaultScope               = "read"
	defaultBatchSize           = 25
	defaultRequestTimeout      = 30 * time.Second
	defaultRequestsPerMinute   = 60
	defaultRefillThreshold     = 5
	defaultMaxDuplicateRetries = 5
)

type Config struct {
	// Reddit "installed app" client id; there is no secret
	ClientID string `validate:"required_if=FeedSource api"`

	// Must match the redirect registered for the app
	RedirectURI string `validate:"required,url"`

	AuthURL   string `validate:"required,url"`
	TokenURL  string `validate:"required,url"`
	RevokeURL string `validate:"required,url"`
	FeedURL   string `validate:"required,url"`
	RSSURL    string `validate:"required,url"`

	// Where cheers come from: the OAuth listing API or the public RSS feed
	FeedSource string `validate:"oneof=api rss"`

	// Space separated OAuth scopes
	Scope string `validate:"required"`

	BatchSize           int           `validate:"min=1,max=100"`
	UserAgent           string        `validate:"required"`
	RequestTimeout      time.Duration `validate:"gt=0"`
	RequestsPerMinute   int           `validate:"min=0"`
	RefillThreshold     int           `validate:"min=0"`
	MaxDuplicateRetries int           `validate:"min=1"`
}

func NewConfig(version string) *Config {
	return &Config{
		RedirectURI:         defaultRedirectURI,
		AuthURL:             defaultAuthURL,
		TokenURL:            defaultTokenURL,
		RevokeURL:           defaultRevokeURL,
		FeedURL:             defaultFeedURL,
		RSSURL:              defaultRSSURL,
		FeedSource:          FeedSourceAPI,
		Scope:               defaultScope,
		BatchSize:           defaultBatchSize,
		UserAgent:           "cheerily/" + version,
		RequestTimeout:      defaultRequestTimeout,
		RequestsPerMinute:   defaultRequestsPerMinute,
		RefillThreshold:     defaultRefillThreshold,
		MaxDuplicateRetries: defaultMaxDuplicateRetries,
	}
}

// Load variables from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setInt := func(o *int) func(string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			n, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			*o = n
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"CLIENT_ID":             setString(&c.ClientID),
		"REDIRECT_URI":          setString(&c.RedirectURI),
		"AUTH_URL":              setString(&c.AuthURL),
		"TOKEN_URL":             setString(&c.TokenURL),
		"REVOKE_URL":            setString(&c.RevokeURL),
		"FEED_URL":              setString(&c.FeedURL),
		"RSS_URL":               setString(&c.RSSURL),
		"FEED_SOURCE":           setString(&c.FeedSource),
		"SCOPE":                 setString(&c.Scope),
		"USER_AGENT":            setString(&c.UserAgent),
		"BATCH_SIZE":            setInt(&c.BatchSize),
		"REQUESTS_PER_MINUTE":   setInt(&c.RequestsPerMinute),
		"REFILL_THRESHOLD":      setInt(&c.RefillThreshold),
		"MAX_DUPLICATE_RETRIES": setInt(&c.MaxDuplicateRetries),
		"REQUEST_TIMEOUT":       setDuration(&c.RequestTimeout),
	}

	var errs []error
	for key, parseFn := range envMap {
		if err := parseFn(getenv(envPrefix + key)); err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		}
	}
	return errors.Join(errs...)
}

// BindFlags registers every option on fs with the current values as defaults.
// Call it after the environment is loaded so flags take precedence.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.ClientID, "client-id", c.ClientID, "Reddit app client id")
	fs.StringVar(&c.RedirectURI, "redirect-uri", c.RedirectURI, "OAuth redirect URI registered for the app")
	fs.StringVar(&c.AuthURL, "auth-url", c.AuthURL, "Authorization endpoint")
	fs.StringVar(&c.TokenURL, "token-url", c.TokenURL, "Token endpoint")
	fs.StringVar(&c.RevokeURL, "revoke-url", c.RevokeURL, "Token revocation endpoint")
	fs.StringVar(&c.FeedURL, "feed-url", c.FeedURL, "Listing endpoint cheers are fetched from")
	fs.StringVar(&c.RSSURL, "rss-url", c.RSSURL, "Public feed used when --feed-source=rss")
	fs.StringVar(&c.FeedSource, "feed-source", c.FeedSource, "Where cheers come from (api, rss)")
	fs.StringVar(&c.Scope, "scope", c.Scope, "Space separated OAuth scopes")
	fs.StringVar(&c.UserAgent, "user-agent", c.UserAgent, "User-Agent sent upstream")
	fs.IntVar(&c.BatchSize, "batch-size", c.BatchSize, "Cheers requested per batch (1-100)")
	fs.IntVar(&c.RequestsPerMinute, "requests-per-minute", c.RequestsPerMinute, "Upstream rate limit, 0 disables it")
	fs.IntVar(&c.RefillThreshold, "refill-threshold", c.RefillThreshold, "Refill in the background below this many buffered cheers")
	fs.IntVar(&c.MaxDuplicateRetries, "max-duplicate-retries", c.MaxDuplicateRetries, "Fetches allowed without a new cheer before giving up")
	fs.DurationVar(&c.RequestTimeout, "request-timeout", c.RequestTimeout, "Timeout for each upstream request")
}

// Scopes splits Scope into its parts.
func (c *Config) Scopes() []string {
	return strings.Fields(c.Scope)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports the first invalid option.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Param() != "" {
			return fmt.Errorf("invalid config %s: failed %s=%s (value %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value())
		}
		return fmt.Errorf("invalid config %s: failed %s", fe.Field(), fe.Tag())
	}
	return err
}
