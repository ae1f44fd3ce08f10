package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Token errors.
var (
	ErrTokenMalformed = errors.New("malformed download token")
	ErrTokenSignature = errors.New("invalid download token signature")
	ErrTokenExpired   = errors.New("download token expired")
)

// DownloadToken is the metadata carried by a signed download link.
type DownloadToken struct {
	JobID     string
	TenantID  string
	Path      string
	ExpiresAt time.Time
}

// SignedURLSigner creates and validates signed download tokens.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL reports how long issued tokens stay valid.
func (s *SignedURLSigner) TTL() time.Duration {
	return s.ttl
}

// Generate returns a token binding the job, its tenant and the stored file.
// Layout: jobID.tenant.expiry.path.signature with tenant and path base64url encoded.
func (s *SignedURLSigner) Generate(jobID, tenantID, relPath string) (string, time.Time, error) {
	if jobID == "" || tenantID == "" || relPath == "" {
		return "", time.Time{}, fmt.Errorf("job, tenant and path required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	parts := []string{
		jobID,
		base64.RawURLEncoding.EncodeToString([]byte(tenantID)),
		strconv.FormatInt(expiresAt.Unix(), 10),
		base64.RawURLEncoding.EncodeToString([]byte(relPath)),
	}
	parts = append(parts, s.sign(parts))
	return strings.Join(parts, "."), expiresAt, nil
}

// Parse validates a token and returns its metadata. allowExpired skips the expiry check.
func (s *SignedURLSigner) Parse(token string, allowExpired bool) (*DownloadToken, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 5 || parts[0] == "" {
		return nil, ErrTokenMalformed
	}
	if !hmac.Equal([]byte(s.sign(parts[:4])), []byte(parts[4])) {
		return nil, ErrTokenSignature
	}
	tenant, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrTokenMalformed
	}
	expUnix, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, ErrTokenMalformed
	}
	path, err := base64.RawURLEncoding.DecodeString(parts[3])
	if err != nil {
		return nil, ErrTokenMalformed
	}
	parsed := &DownloadToken{JobID: parts[0], TenantID: string(tenant), Path: string(path), ExpiresAt: time.Unix(expUnix, 0).UTC()}
	if !allowExpired && s.now().After(parsed.ExpiresAt) {
		return nil, ErrTokenExpired
	}
	return parsed, nil
}

func (s *SignedURLSigner) sign(parts []string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}
