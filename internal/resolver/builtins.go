package resolver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"irrl/internal/domain"
)

// BuiltInConfig carries the settings individual built-ins need.
type BuiltInConfig struct {
	// GitHubToken raises the API rate limit for the github-repo resolver.
	GitHubToken string
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// RegisterBuiltIns installs the resolvers shipped with the service. Called
// once at boot.
func RegisterBuiltIns(reg *Registry, cfg BuiltInConfig) error {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	for _, res := range []Resolver{
		&urlLiveness{client: client},
		&hashCommitment{},
		&githubRepo{token: cfg.GitHubToken},
	} {
		if err := reg.Register(res); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// url-liveness: evidence {url} is checked for reachability.

type urlLiveness struct {
	client *http.Client
}

func (r *urlLiveness) Metadata() domain.ResolverMetadata {
	return domain.ResolverMetadata{
		ID:          "url-liveness",
		Version:     "1.0.0",
		Name:        "URL Liveness",
		Description: "Checks that a URL resolves and answers with a non-5xx status",
		Author:      "irrl",
		EvidenceSchema: domain.EvidenceSchema{
			Required: map[string]string{"url": "string"},
		},
		Domains:             []string{"*"},
		Deterministic:       false,
		AvgVerificationTime: 2 * time.Second,
	}
}

func (r *urlLiveness) ValidateEvidence(evidence map[string]any) domain.EvidenceValidation {
	v := ValidateAgainstSchema(r.Metadata().EvidenceSchema, evidence)
	if !v.Valid {
		return v
	}
	raw, _ := evidence["url"].(string)
	if _, err := normalizeURL(raw); err != nil {
		return domain.EvidenceValidation{Valid: false, Errors: map[string]string{"url": err.Error()}}
	}
	return v
}

func (r *urlLiveness) CanResolve(_ string, evidence map[string]any) bool {
	return r.ValidateEvidence(evidence).Valid
}

func (r *urlLiveness) Verify(ctx context.Context, evidence map[string]any) domain.VerificationResult {
	raw, _ := evidence["url"].(string)
	normalized, err := normalizeURL(raw)
	if err != nil {
		return domain.VerificationResult{
			Status: domain.RunFailed,
			Output: map[string]any{"url": raw, "alive": false},
			Error:  err.Error(),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, normalized, nil)
	if err != nil {
		return domain.VerificationResult{Status: domain.RunError, Error: err.Error()}
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return domain.VerificationResult{Status: domain.RunError, Error: err.Error()}
	}
	resp.Body.Close()

	alive := resp.StatusCode < 500
	status := domain.RunVerified
	if !alive {
		status = domain.RunFailed
	}
	sum := sha256.Sum256([]byte(normalized))
	return domain.VerificationResult{
		Status: status,
		Output: map[string]any{
			"url":        normalized,
			"statusCode": resp.StatusCode,
			"alive":      alive,
		},
		Snapshot: map[string]any{
			"normalizedUrl": normalized,
			"urlHash":       hex.EncodeToString(sum[:]),
			"checkedAt":     time.Now().UTC().Format(time.RFC3339),
		},
	}
}

func normalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errInvalidScheme
	}
	if u.Host == "" {
		return "", errMissingHost
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u.String(), nil
}

var (
	errInvalidScheme = urlError("url scheme must be http or https")
	errMissingHost   = urlError("url host is required")
)

type urlError string

func (e urlError) Error() string { return string(e) }

// ---------------------------------------------------------------------------
// hash-commitment: evidence {sha256, value?}. With a preimage supplied the
// digest is recomputed and compared; without one the commitment cannot be
// checked and the run fails.

type hashCommitment struct{}

func (r *hashCommitment) Metadata() domain.ResolverMetadata {
	return domain.ResolverMetadata{
		ID:          "hash-commitment",
		Version:     "1.0.0",
		Name:        "Hash Commitment",
		Description: "Verifies that a revealed value matches a prior sha256 commitment",
		Author:      "irrl",
		EvidenceSchema: domain.EvidenceSchema{
			Required: map[string]string{"sha256": "string"},
			Optional: map[string]string{"value": "string"},
		},
		Domains:             []string{"*"},
		Deterministic:       true,
		AvgVerificationTime: 100 * time.Millisecond,
	}
}

var hexDigest = regexp.MustCompile(`^[0-9a-f]{64}$`)

func (r *hashCommitment) ValidateEvidence(evidence map[string]any) domain.EvidenceValidation {
	v := ValidateAgainstSchema(r.Metadata().EvidenceSchema, evidence)
	if !v.Valid {
		return v
	}
	digest, _ := evidence["sha256"].(string)
	if !hexDigest.MatchString(digest) {
		return domain.EvidenceValidation{
			Valid:  false,
			Errors: map[string]string{"sha256": "expected 64 lowercase hex characters"},
		}
	}
	return v
}

func (r *hashCommitment) CanResolve(_ string, evidence map[string]any) bool {
	return r.ValidateEvidence(evidence).Valid
}

func (r *hashCommitment) Verify(_ context.Context, evidence map[string]any) domain.VerificationResult {
	digest, _ := evidence["sha256"].(string)
	value, ok := evidence["value"].(string)
	if !ok {
		return domain.VerificationResult{
			Status: domain.RunFailed,
			Output: map[string]any{"matched": false},
			Error:  "preimage value not supplied",
		}
	}

	sum := sha256.Sum256([]byte(value))
	matched := hex.EncodeToString(sum[:]) == digest
	status := domain.RunVerified
	if !matched {
		status = domain.RunFailed
	}
	return domain.VerificationResult{
		Status: status,
		Output: map[string]any{"sha256": digest, "matched": matched},
	}
}

// ---------------------------------------------------------------------------
// github-repo: evidence {owner, repo}. Verification is structural; the token
// is carried so a deployment can extend this to live API checks without a
// schema change.

type githubRepo struct {
	token string
}

var githubName = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9._-]{0,99})$`)

func (r *githubRepo) Metadata() domain.ResolverMetadata {
	return domain.ResolverMetadata{
		ID:          "github-repo",
		Version:     "1.0.0",
		Name:        "GitHub Repository",
		Description: "Attests ownership references to a GitHub repository",
		Author:      "irrl",
		EvidenceSchema: domain.EvidenceSchema{
			Required: map[string]string{"owner": "string", "repo": "string"},
			Optional: map[string]string{"ref": "string"},
		},
		Domains:             []string{"code-review", "open-source"},
		Deterministic:       true,
		AvgVerificationTime: 3 * time.Second,
	}
}

func (r *githubRepo) ValidateEvidence(evidence map[string]any) domain.EvidenceValidation {
	return ValidateAgainstSchema(r.Metadata().EvidenceSchema, evidence)
}

func (r *githubRepo) CanResolve(claim string, evidence map[string]any) bool {
	if !r.ValidateEvidence(evidence).Valid {
		return false
	}
	return claim == "" || strings.Contains(claim, "repo") || strings.Contains(claim, "github")
}

func (r *githubRepo) Verify(_ context.Context, evidence map[string]any) domain.VerificationResult {
	owner, _ := evidence["owner"].(string)
	repo, _ := evidence["repo"].(string)
	if !githubName.MatchString(owner) || !githubName.MatchString(repo) {
		return domain.VerificationResult{
			Status: domain.RunFailed,
			Output: map[string]any{"fullName": owner + "/" + repo, "wellFormed": false},
			Error:  "owner or repo name is malformed",
		}
	}
	return domain.VerificationResult{
		Status: domain.RunVerified,
		Output: map[string]any{
			"fullName":   owner + "/" + repo,
			"wellFormed": true,
		},
		Snapshot: map[string]any{
			"tokenConfigured": r.token != "",
		},
	}
}
