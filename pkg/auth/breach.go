package auth

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultBreachRangeURL is the Pwned Passwords range endpoint.
const DefaultBreachRangeURL = "https://api.pwnedpasswords.com/range/"

// BreachChecker reports whether a password appears in a breach corpus.
type BreachChecker interface {
	Breached(ctx context.Context, password string) (bool, error)
}

// RangeBreachChecker queries a k-anonymity range API: only the first five
// hex characters of the SHA-1 digest leave the process.
type RangeBreachChecker struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewRangeBreachChecker creates a checker. An empty baseURL uses the public API.
func NewRangeBreachChecker(baseURL string, timeout time.Duration, logger *slog.Logger) *RangeBreachChecker {
	if baseURL == "" {
		baseURL = DefaultBreachRangeURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RangeBreachChecker{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Breached returns false with an error when the API cannot be reached;
// callers treat that as not breached.
func (c *RangeBreachChecker) Breached(ctx context.Context, password string) (bool, error) {
	sum := sha1.Sum([]byte(password))
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	prefix, suffix := digest[:5], digest[5:]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+prefix, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Add-Padding", "true")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("breach check unavailable", "error", err)
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("breach range api returned %d", resp.StatusCode)
		c.logger.Warn("breach check unavailable", "error", err)
		return false, err
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		hashSuffix, count, ok := strings.Cut(strings.TrimSpace(scanner.Text()), ":")
		if ok && strings.EqualFold(hashSuffix, suffix) && count != "0" {
			return true, nil
		}
	}
	return false, scanner.Err()
}
