package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslmode"`
	} `yaml:"database"`
	Client struct {
		APIURL    string `yaml:"api_url"`
		SocketURL string `yaml:"socket_url"`
	} `yaml:"client"`
}

func Default() Config {
	var c Config
	c.Server.Addr = ":5001"
	c.Database.Port = 5432
	c.Database.SSLMode = "disable"
	c.Client.APIURL = "http://localhost:5001"
	c.Client.SocketURL = "ws://localhost:5001/ws"
	return c
}

// Load reads the yaml file when path is non-empty, then applies env-var
// overrides on top.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("parse config: %w", err)
		}
	}

	c.Server.Addr = getEnv("CODEOFF_ADDR", c.Server.Addr)
	c.Database.Host = getEnv("CODEOFF_DB_HOST", c.Database.Host)
	c.Database.Port = getEnvAsInt("CODEOFF_DB_PORT", c.Database.Port)
	c.Database.User = getEnv("CODEOFF_DB_USER", c.Database.User)
	c.Database.Password = getEnv("CODEOFF_DB_PASSWORD", c.Database.Password)
	c.Database.Name = getEnv("CODEOFF_DB_NAME", c.Database.Name)
	c.Database.SSLMode = getEnv("CODEOFF_DB_SSLMODE", c.Database.SSLMode)
	c.Client.APIURL = getEnv("CODEOFF_API_URL", c.Client.APIURL)
	c.Client.SocketURL = getEnv("CODEOFF_SOCKET_URL", c.Client.SocketURL)
	return c, nil
}

// DatabaseConfigured reports whether a Postgres target was given; the
// server falls back to the in-memory store otherwise.
func (c Config) DatabaseConfigured() bool {
	return c.Database.Host != ""
}

func (c Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password, c.Database.Name, c.Database.SSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
