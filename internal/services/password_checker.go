package services

import (
	"bufio"
	"context"
	"crypto/sha1"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/janseva/gateway/internal/config"
)

// commonPasswords is the reject list for the common-password check, matched
// case-insensitively.
var commonPasswords = map[string]struct{}{}

func init() {
	for _, p := range []string{
		"123456", "password", "12345678", "qwerty", "123456789",
		"12345", "1234", "111111", "1234567", "dragon",
		"123123", "baseball", "iloveyou", "trustno1", "sunshine",
		"master", "welcome", "shadow", "ashley", "football",
		"jesus", "michael", "ninja", "mustang", "password1",
		"password123", "admin", "letmein", "monkey", "abc123",
		"starwars", "login", "passw0rd", "qwerty123", "admin123",
		"root", "toor", "pass", "test", "guest",
		"changeme", "hello", "love", "princess",
		"solo", "qazwsx", "access", "flower", "hottie",
	} {
		commonPasswords[p] = struct{}{}
	}
}

// PasswordProfile carries the account fields a candidate password must not
// resemble.
type PasswordProfile struct {
	Email string
	Name  string
	Phone string
}

// PasswordVerdict is the outcome of a password security check. Every failed
// check contributes a reason; Safe is true iff Reasons is empty.
type PasswordVerdict struct {
	Safe    bool     `json:"safe"`
	Reasons []string `json:"reasons"`
}

// BreachLookup checks a SHA-1 range prefix against a breach database and
// returns the candidate suffix set. Implementations must bound their own
// timeout.
type BreachLookup interface {
	Range(ctx context.Context, prefix string) (map[string]int, error)
}

// PasswordChecker judges password acceptability: common-password membership,
// similarity to profile fields, and breach-database exposure via k-anonymity.
type PasswordChecker struct {
	breach BreachLookup
}

func NewPasswordChecker(breach BreachLookup) *PasswordChecker {
	return &PasswordChecker{breach: breach}
}

// Check runs every check independently so the caller can show all violations
// at once. The breach lookup fails open: an unavailable breach database never
// blocks registration, but the failure is logged.
func (c *PasswordChecker) Check(ctx context.Context, password string, profile PasswordProfile) PasswordVerdict {
	var reasons []string

	if IsCommonPassword(password) {
		reasons = append(reasons, "Password is too common")
	}

	if isSimilarToProfile(password, profile) {
		reasons = append(reasons, "Password is too similar to your personal information")
	}

	if c.breach != nil {
		breached, count, err := c.checkBreached(ctx, password)
		if err != nil {
			log.Printf("[PASSWORD] Breach lookup failed, failing open: %v", err)
		} else if breached {
			reasons = append(reasons, fmt.Sprintf("Password has been exposed in %d data breaches", count))
		}
	}

	return PasswordVerdict{Safe: len(reasons) == 0, Reasons: reasons}
}

// IsCommonPassword reports membership in the common-password set,
// case-insensitively.
func IsCommonPassword(password string) bool {
	if password == "" {
		return true
	}
	_, ok := commonPasswords[strings.ToLower(password)]
	return ok
}

func isSimilarToProfile(password string, profile PasswordProfile) bool {
	if password == "" {
		return true
	}
	lower := strings.ToLower(password)

	if profile.Email != "" {
		local := strings.ToLower(strings.SplitN(profile.Email, "@", 2)[0])
		if local != "" && (strings.Contains(lower, local) || strings.Contains(local, lower)) {
			return true
		}
	}

	for _, part := range strings.Fields(strings.ToLower(profile.Name)) {
		if len(part) > 2 && (strings.Contains(lower, part) || strings.Contains(part, lower)) {
			return true
		}
	}

	if profile.Phone != "" {
		if strings.Contains(lower, profile.Phone) || strings.Contains(profile.Phone, password) {
			return true
		}
	}

	return false
}

// checkBreached implements the k-anonymity scheme: only the first five hex
// characters of the SHA-1 digest leave the process; the full digest is
// compared against the returned suffix set locally.
func (c *PasswordChecker) checkBreached(ctx context.Context, password string) (bool, int, error) {
	sum := sha1.Sum([]byte(password))
	digest := strings.ToUpper(fmt.Sprintf("%x", sum))
	prefix, suffix := digest[:5], digest[5:]

	candidates, err := c.breach.Range(ctx, prefix)
	if err != nil {
		return false, 0, err
	}

	if count, ok := candidates[suffix]; ok {
		return true, count, nil
	}
	return false, 0, nil
}

// HIBPClient queries the pwnedpasswords range API.
type HIBPClient struct {
	baseURL string
	client  *http.Client
}

func NewHIBPClient(cfg *config.AuthConfig) *HIBPClient {
	return &HIBPClient{
		baseURL: cfg.BreachLookupURL,
		client:  &http.Client{Timeout: cfg.BreachLookupTime},
	}
}

// Range fetches the suffix set for a five-character SHA-1 prefix. Response
// lines have the form SUFFIX:COUNT.
func (h *HIBPClient) Range(ctx context.Context, prefix string) (map[string]int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/"+prefix, nil)
	if err != nil {
		return nil, err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("breach lookup returned status %d", resp.StatusCode)
	}

	suffixes := make(map[string]int)
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		count, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			continue
		}
		suffixes[strings.ToUpper(parts[0])] = count
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return suffixes, nil
}
