package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Collections struct {
	Listings      string
	Conversations string
	Messages      string
	Payments      string
	Transactions  string
	Reviews       string
}

type Config struct {
	ServerPort         string
	Environment        string
	LogLevel           string
	FirebaseProject    string
	FirebaseAPIKey     string
	ServiceAccountJSON string
	ServiceAccountPath string
	StoreBackend       string
	Collections        Collections
	PaymentFunctionURL string
	PaymentCurrency    string
	RequestTimeout     time.Duration
	MessageRatePerMin  int
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		Environment:        getEnv("ENVIRONMENT", "development"),
		LogLevel:           getEnv("LOG_LEVEL", ""),
		FirebaseProject:    getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseAPIKey:     getEnv("FIREBASE_API_KEY", ""),
		ServiceAccountJSON: getEnv("FIREBASE_SERVICE_ACCOUNT_JSON", ""),
		ServiceAccountPath: getEnv("FIREBASE_SERVICE_ACCOUNT_PATH", ""),
		StoreBackend:       getEnv("STORE_BACKEND", "firestore"),
		Collections: Collections{
			Listings:      getEnv("LISTINGS_COLLECTION", "services"),
			Conversations: getEnv("CONVERSATIONS_COLLECTION", "conversations"),
			Messages:      getEnv("MESSAGES_COLLECTION", "messages"),
			Payments:      getEnv("PAYMENTS_COLLECTION", "payments"),
			Transactions:  getEnv("TRANSACTIONS_COLLECTION", "transactions"),
			Reviews:       getEnv("REVIEWS_COLLECTION", "reviews"),
		},
		PaymentFunctionURL: getEnv("PAYMENT_FUNCTION_URL", ""),
		PaymentCurrency:    getEnv("PAYMENT_CURRENCY", "sgd"),
		RequestTimeout:     time.Duration(getEnvAsInt64("REQUEST_TIMEOUT_SECONDS", 30)) * time.Second,
		MessageRatePerMin:  int(getEnvAsInt64("MESSAGE_RATE_PER_MINUTE", 30)),
	}

	return config, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}
