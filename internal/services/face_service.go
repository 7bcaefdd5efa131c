package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/janseva/gateway/internal/config"
	"github.com/janseva/gateway/internal/models"
	"github.com/janseva/gateway/internal/vault"
)

var (
	ErrFaceNotEnrolled = errors.New("no face template enrolled for account")
	ErrFaceMatcher     = errors.New("face matcher unavailable")
)

// EnrollmentPoses is the capture sequence a client must submit, in order.
var EnrollmentPoses = []string{"front", "left", "right", "up", "down"}

// EnrollmentSample is one pose capture. CapturedAt comes from the client
// capture pipeline and is used to detect replayed photo bursts.
type EnrollmentSample struct {
	Pose       string
	Image      []byte
	CapturedAt time.Time
}

// FaceVerifyResult reports one verification attempt.
type FaceVerifyResult struct {
	Verified   bool    `json:"verified"`
	Similarity float64 `json:"similarity"`
}

// FaceMatcher produces an embedding and a quality score for one image.
// Implementations must fail closed: any error aborts the caller's flow.
type FaceMatcher interface {
	Embed(ctx context.Context, sample []byte) ([]float32, float64, error)
}

// FaceService owns enrollment and step-up verification. Templates are
// stored AES-GCM encrypted; verification throttling lives in Redis.
type FaceService struct {
	db      *sql.DB
	redis   *redis.Client
	vault   *vault.Vault
	matcher FaceMatcher
	config  *config.FaceConfig
}

func NewFaceService(db *sql.DB, redisClient *redis.Client, v *vault.Vault, matcher FaceMatcher, cfg *config.FaceConfig) *FaceService {
	return &FaceService{db: db, redis: redisClient, vault: v, matcher: matcher, config: cfg}
}

// Enabled reports whether the biometric step-up is switched on. Callers skip
// the face step entirely when it is off, even for enrolled accounts.
func (s *FaceService) Enabled() bool {
	return s.config.Enabled
}

// requiredPoses is the capture set for enrollment. Deployments may shorten
// it (low-end devices) but never extend past the known pose order.
func (s *FaceService) requiredPoses() []string {
	n := s.config.RequiredSamples
	if n > 0 && n < len(EnrollmentPoses) {
		return EnrollmentPoses[:n]
	}
	return EnrollmentPoses
}

func faceAttemptsKey(accountID int) string {
	return fmt.Sprintf("face_attempts:%d", accountID)
}

func faceLockKey(accountID int) string {
	return fmt.Sprintf("face_lock:%d", accountID)
}

// Enroll validates a full pose set, averages the per-sample embeddings into
// one template and stores it encrypted. A failed sample aborts the whole
// enrollment without touching any previously stored template; the error
// names the offending pose so the client can recapture just that one.
func (s *FaceService) Enroll(ctx context.Context, accountID int, samples []EnrollmentSample) (*models.FaceTemplate, error) {
	poses := s.requiredPoses()
	if len(samples) != len(poses) {
		return nil, NewFlowError(CodeValidation,
			fmt.Sprintf("enrollment requires %d pose samples", len(poses)))
	}

	var embeddings [][]float32
	var qualitySum float64

	for i, sample := range samples {
		pose := poses[i]
		if sample.Pose != pose {
			return nil, NewFlowError(CodeValidation,
				fmt.Sprintf("sample %d must be pose %q", i+1, pose))
		}
		if len(sample.Image) < s.config.MinSampleBytes {
			return nil, NewFlowError(CodeValidation,
				fmt.Sprintf("pose %q: image too small, recapture required", pose))
		}
		if i > 0 {
			spacing := sample.CapturedAt.Sub(samples[i-1].CapturedAt)
			if spacing < s.config.MinCaptureSpacing {
				return nil, NewFlowError(CodeValidation,
					fmt.Sprintf("pose %q captured too quickly after the previous pose", pose))
			}
		}

		vec, quality, err := s.matcher.Embed(ctx, sample.Image)
		if err != nil {
			log.Printf("[FACE] Embed failed for account %d pose %s: %v", accountID, pose, err)
			return nil, fmt.Errorf("%w: %v", ErrFaceMatcher, err)
		}
		if quality < s.config.MinQuality {
			return nil, NewFlowError(CodeValidation,
				fmt.Sprintf("pose %q: quality %.2f below minimum, recapture required", pose, quality))
		}
		if len(embeddings) > 0 && len(vec) != len(embeddings[0]) {
			return nil, fmt.Errorf("%w: inconsistent embedding dimensions", ErrFaceMatcher)
		}
		embeddings = append(embeddings, vec)
		qualitySum += quality
	}

	template := averageEmbeddings(embeddings)
	encoded, err := json.Marshal(template)
	if err != nil {
		return nil, err
	}
	encrypted, err := s.vault.EncryptField(encoded)
	if err != nil {
		return nil, err
	}

	avgQuality := qualitySum / float64(len(samples))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO face_templates (account_id, template_encrypted, dimension, num_samples, avg_quality, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (account_id) DO UPDATE
		SET template_encrypted = EXCLUDED.template_encrypted,
		    dimension = EXCLUDED.dimension,
		    num_samples = EXCLUDED.num_samples,
		    avg_quality = EXCLUDED.avg_quality,
		    updated_at = NOW()
	`, accountID, encrypted, len(template), len(samples), avgQuality)
	if err != nil {
		return nil, fmt.Errorf("failed to store template: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE accounts SET face_enrolled = TRUE, updated_at = NOW() WHERE id = $1`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to flag enrollment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[FACE] Account %d enrolled: %d samples, avg quality %.2f", accountID, len(samples), avgQuality)
	return &models.FaceTemplate{
		AccountID:  accountID,
		Dimension:  len(template),
		NumSamples: len(samples),
		AvgQuality: avgQuality,
		UpdatedAt:  time.Now(),
	}, nil
}

// Verify scores a live sample against the stored template. Failures count
// toward a Redis-backed attempt budget; exhausting it locks verification
// for the configured duration. A success clears the counter.
func (s *FaceService) Verify(ctx context.Context, accountID int, sample []byte) (*FaceVerifyResult, error) {
	ttl, err := s.redis.TTL(ctx, faceLockKey(accountID)).Result()
	if err != nil {
		return nil, fmt.Errorf("lock store unavailable: %w", err)
	}
	if ttl > 0 {
		fe := NewFlowError(CodeRateLimited, "face verification temporarily locked")
		fe.RetryAfter = int(ttl.Seconds())
		return nil, fe
	}

	stored, err := s.loadTemplate(ctx, accountID)
	if err != nil {
		return nil, err
	}

	vec, quality, err := s.matcher.Embed(ctx, sample)
	if err != nil {
		log.Printf("[FACE] Embed failed for account %d: %v", accountID, err)
		return nil, fmt.Errorf("%w: %v", ErrFaceMatcher, err)
	}
	if quality < s.config.MinQuality {
		return s.recordFailure(ctx, accountID, 0)
	}

	similarity := cosineSimilarity(stored, vec)
	if similarity < s.config.SimilarityThreshold {
		return s.recordFailure(ctx, accountID, similarity)
	}

	s.redis.Del(ctx, faceAttemptsKey(accountID))
	log.Printf("[FACE] Account %d verified (similarity %.2f)", accountID, similarity)
	return &FaceVerifyResult{Verified: true, Similarity: similarity}, nil
}

func (s *FaceService) recordFailure(ctx context.Context, accountID int, similarity float64) (*FaceVerifyResult, error) {
	key := faceAttemptsKey(accountID)
	attempts, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("attempt store unavailable: %w", err)
	}
	s.redis.Expire(ctx, key, s.config.LockDuration)

	if attempts >= int64(s.config.MaxAttempts) {
		s.redis.Set(ctx, faceLockKey(accountID), "1", s.config.LockDuration)
		s.redis.Del(ctx, key)
		log.Printf("[FACE] Account %d locked after %d failed attempts", accountID, attempts)
		fe := NewFlowError(CodeRateLimited, "face verification temporarily locked")
		fe.RetryAfter = int(s.config.LockDuration.Seconds())
		return nil, fe
	}

	return &FaceVerifyResult{Verified: false, Similarity: similarity}, nil
}

// Status reports enrollment metadata without exposing template material.
func (s *FaceService) Status(ctx context.Context, accountID int) (*models.FaceTemplate, error) {
	var t models.FaceTemplate
	err := s.db.QueryRowContext(ctx, `
		SELECT account_id, dimension, num_samples, avg_quality, updated_at
		FROM face_templates WHERE account_id = $1
	`, accountID).Scan(&t.AccountID, &t.Dimension, &t.NumSamples, &t.AvgQuality, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrFaceNotEnrolled
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Disable removes the stored template and clears the enrollment flag.
// Idempotent: disabling an account that never enrolled is a no-op.
func (s *FaceService) Disable(ctx context.Context, accountID int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM face_templates WHERE account_id = $1`, accountID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET face_enrolled = FALSE, updated_at = NOW() WHERE id = $1`, accountID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	log.Printf("[FACE] Account %d enrollment removed", accountID)
	return nil
}

func (s *FaceService) loadTemplate(ctx context.Context, accountID int) ([]float32, error) {
	var encrypted string
	err := s.db.QueryRowContext(ctx,
		`SELECT template_encrypted FROM face_templates WHERE account_id = $1`, accountID).
		Scan(&encrypted)
	if err == sql.ErrNoRows {
		return nil, ErrFaceNotEnrolled
	}
	if err != nil {
		return nil, err
	}

	decoded, err := s.vault.DecryptField(encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt template: %w", err)
	}
	var vec []float32
	if err := json.Unmarshal(decoded, &vec); err != nil {
		return nil, fmt.Errorf("corrupt template: %w", err)
	}
	return vec, nil
}

func averageEmbeddings(embeddings [][]float32) []float32 {
	dim := len(embeddings[0])
	avg := make([]float32, dim)
	for _, vec := range embeddings {
		for i, v := range vec {
			avg[i] += v
		}
	}
	n := float32(len(embeddings))
	for i := range avg {
		avg[i] /= n
	}
	return avg
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// HTTPFaceMatcher calls the embedding sidecar. Any transport or decode
// failure surfaces as an error so callers fail closed.
type HTTPFaceMatcher struct {
	baseURL string
	client  *http.Client
}

func NewHTTPFaceMatcher(cfg *config.FaceConfig) *HTTPFaceMatcher {
	return &HTTPFaceMatcher{
		baseURL: cfg.ServiceURL,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
	}
}

func (m *HTTPFaceMatcher) Embed(ctx context.Context, sample []byte) ([]float32, float64, error) {
	payload, err := json.Marshal(map[string]string{
		"image": base64.StdEncoding.EncodeToString(sample),
	})
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("matcher returned status %d", resp.StatusCode)
	}

	var body struct {
		Embedding []float32 `json:"embedding"`
		Quality   float64   `json:"quality"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, 0, fmt.Errorf("invalid matcher response: %w", err)
	}
	if len(body.Embedding) == 0 {
		return nil, 0, errors.New("matcher returned empty embedding")
	}
	return body.Embedding, body.Quality, nil
}
