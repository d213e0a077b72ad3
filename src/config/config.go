package config

import (
	"fmt"
	"os"
	"strconv"
)

func GetDSN() string {
	DATABASE_HOST := os.Getenv("DATABASE_HOST")
	DATABASE_PORT := os.Getenv("DATABASE_PORT")
	DATABASE_SSLMODE := os.Getenv("DATABASE_SSLMODE")
	DATABASE_TIMEZONE := os.Getenv("DATABASE_TIMEZONE")
	DATABASE_USER := os.Getenv("DATABASE_USER")
	DATABASE_PASSWORD := os.Getenv("DATABASE_PASSWORD")
	DATABASE_NAME := os.Getenv("DATABASE_NAME")
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s", DATABASE_HOST, DATABASE_USER, DATABASE_PASSWORD, DATABASE_NAME, DATABASE_PORT, DATABASE_SSLMODE, DATABASE_TIMEZONE)
	return dsn
}

// BoothID identifies the single booth this daemon serves.
func BoothID() uint {
	id, err := strconv.Atoi(os.Getenv("BOOTH_ID"))
	if err != nil || id < 1 {
		return 1
	}
	return uint(id)
}

const (
	// InvoicePollInterval is how often the machine polls a pending invoice.
	InvoicePollIntervalSeconds = 3
	// InvoiceTTLSeconds is the local advisory payment countdown and the
	// expiry requested from the gateway.
	InvoiceTTLSeconds = 300
	// GifSizeBudgetBytes is the target upper bound for generated GIFs.
	GifSizeBudgetBytes = 1000 * 1024
	// UploadAttempts is the bounded retry budget on the primary transport.
	UploadAttempts = 3
)
