package policy

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
)

// Duration is a time.Duration read from strings such as "30s" in TOML files.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config holds the parameters of a Manager.
type Config struct {
	// OfferTimeout bounds a single OfferArrangement call.
	OfferTimeout Duration `toml:"offer_timeout"`
	// RequestTimeout bounds a single SubmitReencryption call.
	RequestTimeout Duration `toml:"request_timeout"`
	// MaxRetries is the number of substitute nodes a KFrag may be offered to
	// after the first one declined or timed out.
	MaxRetries int `toml:"max_retries"`
	// AcceptanceSlack is how many of the n KFrags may stay unplaced, a policy
	// is granted once max(m, n - AcceptanceSlack) nodes accepted.
	AcceptanceSlack int `toml:"acceptance_slack"`
	// Workers is the size of the pool verifying CFrags, the number of CPUs if zero.
	Workers int `toml:"workers"`

	Logger *logrus.Logger `toml:"-"`
}

// DefaultConfig requires every KFrag to be placed.
func DefaultConfig() Config {
	return Config{
		OfferTimeout:    Duration{10 * time.Second},
		RequestTimeout:  Duration{30 * time.Second},
		MaxRetries:      2,
		AcceptanceSlack: 0,
		Logger:          logrus.New(),
	}
}

// LoadConfig reads a TOML file, with defaults for the keys it does not set.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("policy.LoadConfig: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the parameters are usable.
func (c Config) Validate() error {
	switch {
	case c.OfferTimeout.Duration <= 0:
		return fmt.Errorf("policy.Config: offer_timeout must be positive")
	case c.RequestTimeout.Duration <= 0:
		return fmt.Errorf("policy.Config: request_timeout must be positive")
	case c.MaxRetries < 0:
		return fmt.Errorf("policy.Config: max_retries must not be negative")
	case c.AcceptanceSlack < 0:
		return fmt.Errorf("policy.Config: acceptance_slack must not be negative")
	case c.Workers < 0:
		return fmt.Errorf("policy.Config: workers must not be negative")
	}
	return nil
}

// required returns the number of acceptances needed to grant a policy.
func (c Config) required(threshold, shares int) int {
	required := shares - c.AcceptanceSlack
	if required < threshold {
		return threshold
	}
	return required
}
