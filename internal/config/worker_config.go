package config

import (
	"fmt"
	"strings"
)

// LoadWorker reads the shared configuration for the mail worker. Signing
// secrets are not needed there, so only the queue and delivery settings are
// checked.
func LoadWorker() (*AppConfig, error) {
	v, err := readViper("worker")
	if err != nil {
		return nil, err
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateWorker(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) ValidateWorker() error {
	var problems []string
	if strings.TrimSpace(c.Redis.Addr) == "" {
		problems = append(problems, "redis.addr is required")
	}
	if strings.TrimSpace(c.Worker.Stream) == "" {
		problems = append(problems, "worker.stream is required")
	}
	if strings.TrimSpace(c.Mail.SMTPHost) == "" || c.Mail.SMTPPort <= 0 {
		problems = append(problems, "mail.smtphost and mail.smtpport are required")
	}
	if strings.TrimSpace(c.Worker.Group) == "" || strings.TrimSpace(c.Worker.Consumer) == "" {
		problems = append(problems, "worker.group and worker.consumer are required")
	}
	if c.Worker.ClaimInterval <= 0 {
		problems = append(problems, "worker.claiminterval must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}
