package services

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/janseva/gateway/internal/config"
	"github.com/stretchr/testify/assert"
)

type stubBreachLookup struct {
	suffixes map[string]int
	err      error
	prefixes []string
}

func (s *stubBreachLookup) Range(_ context.Context, prefix string) (map[string]int, error) {
	s.prefixes = append(s.prefixes, prefix)
	if s.err != nil {
		return nil, s.err
	}
	return s.suffixes, nil
}

func sha1Parts(password string) (string, string) {
	sum := sha1.Sum([]byte(password))
	digest := strings.ToUpper(fmt.Sprintf("%x", sum))
	return digest[:5], digest[5:]
}

func TestIsCommonPassword(t *testing.T) {
	assert.True(t, IsCommonPassword("password"))
	assert.True(t, IsCommonPassword("PASSWORD"))
	assert.True(t, IsCommonPassword("QwErTy"))
	assert.False(t, IsCommonPassword("k9!mZ#q2@Lp7&xVw"))
}

func TestPasswordCheckerSimilarity(t *testing.T) {
	checker := NewPasswordChecker(nil)
	profile := PasswordProfile{Email: "varun.patel@example.com", Name: "Varun Patel", Phone: "9812345678"}

	t.Run("contains email local part", func(t *testing.T) {
		verdict := checker.Check(context.Background(), "varun.patel2024", profile)
		assert.False(t, verdict.Safe)
	})

	t.Run("contains name token", func(t *testing.T) {
		verdict := checker.Check(context.Background(), "xXpatelXx!", profile)
		assert.False(t, verdict.Safe)
	})

	t.Run("contains phone", func(t *testing.T) {
		verdict := checker.Check(context.Background(), "a9812345678z", profile)
		assert.False(t, verdict.Safe)
	})

	t.Run("unrelated password passes", func(t *testing.T) {
		verdict := checker.Check(context.Background(), "corridor-maple-42!", profile)
		assert.True(t, verdict.Safe)
		assert.Empty(t, verdict.Reasons)
	})
}

func TestPasswordCheckerCollectsAllReasons(t *testing.T) {
	_, suffix := sha1Parts("password")
	breach := &stubBreachLookup{suffixes: map[string]int{suffix: 3861493}}
	checker := NewPasswordChecker(breach)

	verdict := checker.Check(context.Background(), "password", PasswordProfile{Email: "password@example.com"})
	assert.False(t, verdict.Safe)
	// common + similarity + breached, none short-circuited
	assert.Len(t, verdict.Reasons, 3)
}

func TestPasswordCheckerBreachFailOpen(t *testing.T) {
	breach := &stubBreachLookup{err: errors.New("upstream down")}
	checker := NewPasswordChecker(breach)

	verdict := checker.Check(context.Background(), "corridor-maple-42!", PasswordProfile{})
	assert.True(t, verdict.Safe)
}

func TestPasswordCheckerSendsOnlyPrefix(t *testing.T) {
	prefix, _ := sha1Parts("corridor-maple-42!")
	breach := &stubBreachLookup{suffixes: map[string]int{}}
	checker := NewPasswordChecker(breach)

	checker.Check(context.Background(), "corridor-maple-42!", PasswordProfile{})
	assert.Equal(t, []string{prefix}, breach.prefixes)
	assert.Len(t, breach.prefixes[0], 5)
}

func TestHIBPClientRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ABCDE", r.URL.Path)
		fmt.Fprint(w, "FFFFF1111:12\r\nAAAAA2222:7\r\nmalformed\r\n")
	}))
	defer srv.Close()

	client := NewHIBPClient(&config.AuthConfig{
		BreachLookupURL:  srv.URL,
		BreachLookupTime: 2 * time.Second,
	})

	suffixes, err := client.Range(context.Background(), "ABCDE")
	assert.NoError(t, err)
	assert.Equal(t, 12, suffixes["FFFFF1111"])
	assert.Equal(t, 7, suffixes["AAAAA2222"])
	assert.Len(t, suffixes, 2)
}

func TestHIBPClientRangeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewHIBPClient(&config.AuthConfig{BreachLookupURL: srv.URL, BreachLookupTime: time.Second})
	_, err := client.Range(context.Background(), "ABCDE")
	assert.Error(t, err)
}
