package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"net/url"
	"strings"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/danukusuma/auth-service/internal/auth/domain"
	"github.com/danukusuma/auth-service/internal/crypto"
	autherror "github.com/danukusuma/auth-service/internal/errors"
)

const (
	totpPeriod = 30
	totpDigits = otp.DigitsSix
	// totpSkew accepts the current step plus one step either side for clock
	// drift. Never wider.
	totpSkew = 1

	backupCodeCount = 10
	backupAlphabet  = "ABCDEFGHJKMNPQRSTUVWXYZ23456789" // no 0/O, 1/I/L
)

// TwoFactorService owns TOTP secrets (encrypted at rest) and single-use
// backup codes (stored as digests).
type TwoFactorService struct {
	issuer string
	cipher crypto.Cipher
	clock  domain.Clock
}

// NewTwoFactorService takes a nil cipher to mean "no encryption key
// configured"; every secret-touching call then fails with
// ErrEncryptionUnavailable instead of persisting plaintext.
func NewTwoFactorService(issuer string, cipher crypto.Cipher, clock domain.Clock) *TwoFactorService {
	return &TwoFactorService{issuer: issuer, cipher: cipher, clock: clock}
}

// GenerateSecret returns the base32 secret for the enrollment QR plus the
// ciphertext that goes to storage.
func (s *TwoFactorService) GenerateSecret(accountLabel string) (string, string, error) {
	if s.cipher == nil {
		return "", "", autherror.ErrEncryptionUnavailable
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: accountLabel,
		Period:      totpPeriod,
		Digits:      totpDigits,
	})
	if err != nil {
		return "", "", fmt.Errorf("generate totp secret: %w", err)
	}
	secret := key.Secret()
	encrypted, err := s.cipher.Encrypt(secret)
	if err != nil {
		return "", "", fmt.Errorf("encrypt totp secret: %w", err)
	}
	return secret, encrypted, nil
}

// ProvisioningURI builds the otpauth URI authenticator apps enroll from.
// Deterministic for a given secret and label.
func (s *TwoFactorService) ProvisioningURI(secret, accountLabel string) string {
	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", s.issuer)
	v.Set("period", fmt.Sprintf("%d", totpPeriod))
	v.Set("digits", totpDigits.String())

	u := url.URL{
		Scheme:   "otpauth",
		Host:     "totp",
		Path:     "/" + s.issuer + ":" + accountLabel,
		RawQuery: v.Encode(),
	}
	return u.String()
}

// VerifyCode decrypts the stored secret and checks the code against the
// current step with ±1 step of tolerance.
func (s *TwoFactorService) VerifyCode(encryptedSecret, code string) (bool, error) {
	if s.cipher == nil {
		return false, autherror.ErrEncryptionUnavailable
	}
	secret, err := s.cipher.Decrypt(encryptedSecret)
	if err != nil {
		return false, fmt.Errorf("decrypt totp secret: %w", err)
	}
	ok, err := totp.ValidateCustom(strings.TrimSpace(code), secret, s.clock.Now(), totp.ValidateOpts{
		Period: totpPeriod,
		Skew:   totpSkew,
		Digits: totpDigits,
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// GenerateBackupCodes returns the plaintext codes exactly once alongside the
// digests that go to storage.
func (s *TwoFactorService) GenerateBackupCodes() ([]string, []string, error) {
	plain := make([]string, backupCodeCount)
	hashed := make([]string, backupCodeCount)
	for i := range plain {
		code, err := randomBackupCode()
		if err != nil {
			return nil, nil, err
		}
		plain[i] = code
		hashed[i] = hashBackupCode(code)
	}
	return plain, hashed, nil
}

// VerifyBackupCode matches the normalized input against the stored digests.
// On a match the caller MUST follow up with RemoveUsedBackupCode: each code
// is valid exactly once.
func (s *TwoFactorService) VerifyBackupCode(hashedCodes []string, input string) (bool, int) {
	digest := hashBackupCode(input)
	for i, stored := range hashedCodes {
		if stored == digest {
			return true, i
		}
	}
	return false, -1
}

// RemoveUsedBackupCode returns the set with the matched entry dropped.
func (s *TwoFactorService) RemoveUsedBackupCode(hashedCodes []string, index int) []string {
	if index < 0 || index >= len(hashedCodes) {
		return hashedCodes
	}
	out := make([]string, 0, len(hashedCodes)-1)
	out = append(out, hashedCodes[:index]...)
	out = append(out, hashedCodes[index+1:]...)
	return out
}

func randomBackupCode() (string, error) {
	buf := make([]byte, 8)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(backupAlphabet))))
		if err != nil {
			return "", err
		}
		buf[i] = backupAlphabet[n.Int64()]
	}
	return string(buf[:4]) + "-" + string(buf[4:]), nil
}

// hashBackupCode normalizes before digesting so "ab12-cd34", "AB12CD34" and
// "ab12 cd34" all match the same stored entry.
func hashBackupCode(code string) string {
	normalized := strings.ToUpper(code)
	normalized = strings.NewReplacer("-", "", " ", "").Replace(normalized)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
