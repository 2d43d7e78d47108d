package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ApplyEnv overrides config fields from environment variables. Secrets may
// also be read from files named by the *_FILE variants.
func (c *Config) ApplyEnv() error {
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
	if url := os.Getenv("FRONTEND_URL"); url != "" {
		c.Server.FrontendURL = url
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		c.Redis.Password = pw
	}
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			c.Redis.DB = db
		}
	}
	if prefix := os.Getenv("REDIS_PREFIX"); prefix != "" {
		c.Redis.Prefix = prefix
	}

	if host := os.Getenv("DB_HOST"); host != "" {
		c.Database.Host = host
	}
	if portStr := os.Getenv("DB_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("DB_PORT: %w", err)
		}
		c.Database.Port = port
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		c.Database.Name = name
	}
	if user := os.Getenv("DB_USER"); user != "" {
		c.Database.User = user
	}
	if pw := os.Getenv("DB_PASSWORD"); pw != "" {
		c.Database.Password = pw
	}
	if file := os.Getenv("DB_PASSWORD_FILE"); file != "" {
		pw, err := readSecret(file)
		if err != nil {
			return err
		}
		c.Database.Password = pw
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = strings.ToLower(level)
	}
	return nil
}

func readSecret(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read secret %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}
