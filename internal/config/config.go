package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Server struct {
		Port string
		Host string
		TLS  struct {
			Enabled  bool
			CertFile string
			KeyFile  string
		}
		DeployDomain string
		Debug        bool
	}
	Auth struct {
		GoogleKey      string
		GoogleSecret   string
		GoogleRedirect string
		GithubKey      string
		GithubSecret   string
		GithubRedirect string
		SessionSecret  string
		// SignupAllowedDomains limits new accounts to these email domains when set
		SignupAllowedDomains []string
	}
	Database struct {
		DSN      string
		RedisURI string
		SeedDemo bool
		// Password given to every demo user
		SeedPassword string
	}
	AI struct {
		APIKey            string
		BaseURL           string
		FastModel         string
		ProModel          string
		RequestsPerSecond int
	}
	Resend struct {
		APIKey        string
		DefaultSender string
	}
	Slack struct {
		WebhookURL string
	}
	Sentry struct {
		DSN string
	}
	// CurrentQuarter overrides the quarter label derived from the clock, e.g. "Q4 2024"
	CurrentQuarter string
}

func Load() (*Config, error) {

	envStack := os.Getenv("ENV_STACK")

	if envStack != "" {
		filePath := "./env-files/.env." + envStack
		err := godotenv.Load(filePath)
		if err != nil {
			fmt.Printf("Error loading .env file: %s\n", err)
		}
	}

	c := &Config{}

	c.Server.Port = os.Getenv("SERVER_PORT")
	if c.Server.Port == "" {
		c.Server.Port = "1926"
	}

	c.Server.Host = os.Getenv("SERVER_HOST")
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}

	c.Server.DeployDomain = os.Getenv("DEPLOY_DOMAIN")
	if c.Server.DeployDomain == "" {
		c.Server.DeployDomain = c.Server.Host + ":" + c.Server.Port
	}

	c.Server.Debug = os.Getenv("ENABLE_DEBUG_ENDPOINTS") == "true"

	// TLS Configuration
	useTLS := os.Getenv("USE_TLS")
	c.Server.TLS.Enabled = useTLS != "false" && useTLS != "0"
	c.Server.TLS.CertFile = "./certs/localhost.pem"
	c.Server.TLS.KeyFile = "./certs/localhost-key.pem"

	c.Auth.SessionSecret = os.Getenv("SESSION_SECRET")

	// Comma separated, e.g. "acme.com,acme.io"
	for _, domain := range strings.Split(os.Getenv("SIGNUP_ALLOWED_DOMAINS"), ",") {
		if domain = strings.TrimSpace(domain); domain != "" {
			c.Auth.SignupAllowedDomains = append(c.Auth.SignupAllowedDomains, domain)
		}
	}

	c.Auth.GoogleKey = os.Getenv("GOOGLE_KEY")
	c.Auth.GoogleSecret = os.Getenv("GOOGLE_SECRET")
	c.Auth.GoogleRedirect = fmt.Sprintf("https://%s/api/auth/social/google/callback", c.Server.DeployDomain)

	c.Auth.GithubKey = os.Getenv("GITHUB_KEY")
	c.Auth.GithubSecret = os.Getenv("GITHUB_SECRET")
	c.Auth.GithubRedirect = fmt.Sprintf("https://%s/api/auth/social/github/callback", c.Server.DeployDomain)

	c.Database.DSN = os.Getenv("DATABASE_DSN")
	if c.Database.DSN == "" {
		c.Database.DSN = "file::memory:?cache=shared"
	}
	c.Database.RedisURI = os.Getenv("REDIS_URI")
	c.Database.SeedDemo = os.Getenv("SEED_DEMO_DATA") == "true"
	c.Database.SeedPassword = os.Getenv("SEED_DEMO_PASSWORD")
	if c.Database.SeedPassword == "" {
		c.Database.SeedPassword = "peerpulse-demo"
	}

	// The AI features degrade to static answers when API_KEY is missing
	c.AI.APIKey = os.Getenv("API_KEY")
	c.AI.BaseURL = os.Getenv("AI_BASE_URL")
	c.AI.FastModel = os.Getenv("AI_FAST_MODEL")
	if c.AI.FastModel == "" {
		c.AI.FastModel = "gpt-4o-mini"
	}
	c.AI.ProModel = os.Getenv("AI_PRO_MODEL")
	if c.AI.ProModel == "" {
		c.AI.ProModel = "gpt-4o"
	}
	c.AI.RequestsPerSecond = 5
	if rps := os.Getenv("AI_REQUESTS_PER_SECOND"); rps != "" {
		n, err := strconv.Atoi(rps)
		if err != nil || n <= 0 {
			return c, fmt.Errorf("AI_REQUESTS_PER_SECOND should be a positive integer, but got: %s", rps)
		}
		c.AI.RequestsPerSecond = n
	}

	c.Resend.APIKey = os.Getenv("RESEND_API_KEY")
	c.Resend.DefaultSender = os.Getenv("RESEND_DEFAULT_SENDER")
	if c.Resend.DefaultSender == "" {
		c.Resend.DefaultSender = "noreply@peerpulse.app"
	}

	c.Slack.WebhookURL = os.Getenv("SLACK_WEBHOOK_URL")

	c.Sentry.DSN = os.Getenv("SENTRY_DSN")

	c.CurrentQuarter = os.Getenv("CURRENT_QUARTER")

	return c, nil
}
