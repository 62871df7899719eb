// Package config loads per-service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Orders struct {
	Port                    string
	PostgresURL             string
	KafkaBrokers            []string
	EventsTopic             string
	KafkaRequiredAcks       int
	KafkaBatchTimeout       time.Duration
	JWTSecret               string
	CatalogServiceURL       string
	RecomputeTotal          bool
	RequireAvailablePartner bool
}

func LoadOrders() (*Orders, error) {
	cfg := &Orders{
		Port:              getEnv("PORT", "8081"),
		PostgresURL:       os.Getenv("POSTGRES_URL"),
		KafkaBrokers:      splitList(os.Getenv("KAFKA_BROKERS")),
		EventsTopic:       getEnv("EVENTS_TOPIC", "order.events"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		CatalogServiceURL: os.Getenv("CATALOG_SERVICE_URL"),
	}

	var err error
	if cfg.KafkaRequiredAcks, err = getAcks("KAFKA_REQUIRED_ACKS", 1); err != nil {
		return nil, err
	}
	if cfg.KafkaBatchTimeout, err = getDuration("KAFKA_BATCH_TIMEOUT", 50*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.RecomputeTotal, err = getBool("RECOMPUTE_TOTAL", false); err != nil {
		return nil, err
	}
	if cfg.RequireAvailablePartner, err = getBool("REQUIRE_AVAILABLE_PARTNER", false); err != nil {
		return nil, err
	}

	if err := require(map[string]string{
		"POSTGRES_URL":        cfg.PostgresURL,
		"JWT_SECRET":          cfg.JWTSecret,
		"CATALOG_SERVICE_URL": cfg.CatalogServiceURL,
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}

type Catalog struct {
	Port        string
	PostgresURL string
}

func LoadCatalog() (*Catalog, error) {
	cfg := &Catalog{
		Port:        getEnv("PORT", "8082"),
		PostgresURL: os.Getenv("POSTGRES_URL"),
	}
	if err := require(map[string]string{"POSTGRES_URL": cfg.PostgresURL}); err != nil {
		return nil, err
	}
	return cfg, nil
}

type Tracker struct {
	Port         string
	KafkaBrokers []string
	EventsTopic  string
	GroupID      string
	JWTSecret    string
}

func LoadTracker() (*Tracker, error) {
	cfg := &Tracker{
		Port:         getEnv("PORT", "8083"),
		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		EventsTopic:  getEnv("EVENTS_TOPIC", "order.events"),
		GroupID:      getEnv("KAFKA_GROUP_ID", "order-tracker"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
	}
	if err := require(map[string]string{
		"KAFKA_BROKERS": strings.Join(cfg.KafkaBrokers, ","),
		"JWT_SECRET":    cfg.JWTSecret,
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}

type Gateway struct {
	Port              string
	OrdersServiceURL  string
	CatalogServiceURL string
}

func LoadGateway() (*Gateway, error) {
	cfg := &Gateway{
		Port:              getEnv("PORT", "8080"),
		OrdersServiceURL:  os.Getenv("ORDERS_SERVICE_URL"),
		CatalogServiceURL: os.Getenv("CATALOG_SERVICE_URL"),
	}
	if err := require(map[string]string{
		"ORDERS_SERVICE_URL":  cfg.OrdersServiceURL,
		"CATALOG_SERVICE_URL": cfg.CatalogServiceURL,
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) (bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

// getAcks reads a producer acknowledgement level: none (0), one (1) or
// all (-1).
func getAcks(key string, defaultValue int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue, nil
	}
	switch strings.ToLower(value) {
	case "none", "0":
		return 0, nil
	case "one", "1":
		return 1, nil
	case "all", "-1":
		return -1, nil
	}
	return 0, fmt.Errorf("%s: unknown acknowledgement level %q", key, value)
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func require(values map[string]string) error {
	var errs []error
	for key, value := range values {
		if value == "" {
			errs = append(errs, fmt.Errorf("%s environment variable is required", key))
		}
	}
	return errors.Join(errs...)
}
