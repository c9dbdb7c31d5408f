package config

import (
	_ "embed"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yml
var defaultYAML []byte

type Config struct {
	App struct {
		Port    int    `yaml:"port" json:"port"`
		DataDir string `yaml:"data_dir" json:"data_dir"`
	} `yaml:"app" json:"app"`

	Fetch struct {
		TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
		MaxRedirects   int    `yaml:"max_redirects" json:"max_redirects"`
		MaxBodyBytes   int64  `yaml:"max_body_bytes" json:"max_body_bytes"`
		UserAgent      string `yaml:"user_agent" json:"user_agent"`
	} `yaml:"fetch" json:"fetch"`

	LLM struct {
		Model          string  `yaml:"model" json:"model"`
		MaxTokens      int     `yaml:"max_tokens" json:"max_tokens"`
		Temperature    float64 `yaml:"temperature" json:"temperature"`
		TextBudget     int     `yaml:"text_budget" json:"text_budget"`
		TimeoutSeconds int     `yaml:"timeout_seconds" json:"timeout_seconds"`
		BaseURL        string  `yaml:"base_url" json:"base_url"`
	} `yaml:"llm" json:"llm"`

	Bulk struct {
		Concurrency int     `yaml:"concurrency" json:"concurrency"`
		MaxURLs     int     `yaml:"max_urls" json:"max_urls"`
		HostRPS     float64 `yaml:"host_rps" json:"host_rps"`
		HostBurst   int     `yaml:"host_burst" json:"host_burst"`
	} `yaml:"bulk" json:"bulk"`

	Email struct {
		Enabled          bool     `yaml:"enabled" json:"enabled"`
		IMAPHost         string   `yaml:"imap_host" json:"imap_host"`
		IMAPPort         int      `yaml:"imap_port" json:"imap_port"`
		Username         string   `yaml:"username" json:"username"`
		Mailbox          string   `yaml:"mailbox" json:"mailbox"`
		Board            string   `yaml:"board" json:"board"`
		MaxMessages      int      `yaml:"max_messages" json:"max_messages"`
		PollMinutes      int      `yaml:"poll_minutes" json:"poll_minutes"`
		SearchSubjectAny []string `yaml:"search_subject_any" json:"search_subject_any"`
	} `yaml:"email" json:"email"`
}

func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

func (c Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Email.PollMinutes) * time.Minute
}

// Default is the embedded default.yml, parsed.
func Default() Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultYAML, &cfg); err != nil {
		panic("config: embedded default.yml is invalid: " + err.Error())
	}
	return cfg
}

// Load reads path on top of the defaults, so keys missing from an older
// user file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	err = yaml.Unmarshal(b, &cfg)
	return cfg, err
}
