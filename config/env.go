package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads .env.local and .env from the working directory. Variables
// already set in the environment win. Returns the files that were loaded.
func LoadDotEnv() ([]string, error) {
	var loaded []string
	for _, p := range []string{".env.local", ".env"} {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return loaded, err
		}
		loaded = append(loaded, p)
	}
	return loaded, nil
}

// ApplyEnv overrides secrets and addresses from the environment
func (c *Config) ApplyEnv() {
	if v := os.Getenv("ADMIN_ID"); v != "" {
		c.Bot.AdminID = v
	}
	if v := os.Getenv("MANAGER_CHAT_ID"); v != "" {
		c.Bot.ManagerChatID = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if c.LLM.APIKey == "" {
			c.LLM.APIKey = v
		}
		if c.Analyzer.APIKey == "" {
			c.Analyzer.APIKey = v
		}
	}
	if v := os.Getenv("ADMIN_JWT_SECRET"); v != "" {
		c.Admin.JWTSecret = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.Database.Path = v
	}
}
