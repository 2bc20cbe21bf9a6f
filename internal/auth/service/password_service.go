package service

import (
	"context"
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // the breach corpus is keyed by SHA-1, not used for integrity
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// commonPasswords is a small curated set; membership zeroes the score.
var commonPasswords = map[string]struct{}{
	"password": {}, "password1": {}, "password123": {}, "12345678": {},
	"123456789": {}, "1234567890": {}, "qwerty123": {}, "qwertyuiop": {},
	"iloveyou": {}, "sunshine": {}, "admin123": {}, "letmein1": {},
	"welcome1": {}, "monkey123": {}, "dragon123": {}, "football": {},
	"baseball": {}, "superman": {}, "trustno1": {}, "passw0rd": {},
}

var keyboardRows = []string{"qwertyuiop", "asdfghjkl", "zxcvbnm", "1234567890"}

type StrengthLevel string

const (
	StrengthWeak   StrengthLevel = "weak"
	StrengthFair   StrengthLevel = "fair"
	StrengthGood   StrengthLevel = "good"
	StrengthStrong StrengthLevel = "strong"
)

type StrengthReport struct {
	Score  int           `json:"score"`
	Level  StrengthLevel `json:"level"`
	Issues []string      `json:"issues"`
}

type BreachResult struct {
	Breached bool `json:"breached"`
	Count    int  `json:"count"`
	// Degraded marks a failed corpus lookup: the password was treated as
	// not breached rather than blocking the caller on a third-party outage.
	Degraded bool `json:"degraded"`
}

// PasswordService hashes, verifies and analyzes credentials.
type PasswordService struct {
	breachBase string
	httpClient *http.Client
	log        zerolog.Logger
}

func NewPasswordService(breachBase string, timeout time.Duration, log zerolog.Logger) *PasswordService {
	return &PasswordService{
		breachBase: strings.TrimRight(breachBase, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "password").Logger(),
	}
}

// Hash salts internally, so two calls for the same password never match.
func (s *PasswordService) Hash(password string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

func (s *PasswordService) Verify(password, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}

func (s *PasswordService) ScoreStrength(password string) StrengthReport {
	if len(password) < minPasswordLength {
		return StrengthReport{
			Score:  0,
			Level:  StrengthWeak,
			Issues: []string{fmt.Sprintf("must be at least %d characters", minPasswordLength)},
		}
	}

	if _, ok := commonPasswords[strings.ToLower(password)]; ok {
		return StrengthReport{
			Score:  0,
			Level:  StrengthWeak,
			Issues: []string{"appears in common password lists"},
		}
	}

	score := 0
	var issues []string

	switch {
	case len(password) >= 16:
		score += 30
	case len(password) >= 12:
		score += 20
	default:
		score += 10
		issues = append(issues, "longer passwords are stronger")
	}

	var lower, upper, digit, special bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			special = true
		}
	}
	// Fixed order so the report is stable across calls.
	for _, class := range []struct {
		label   string
		present bool
	}{
		{"lowercase letters", lower},
		{"uppercase letters", upper},
		{"digits", digit},
		{"special characters", special},
	} {
		if class.present {
			score += 15
		} else {
			issues = append(issues, "missing "+class.label)
		}
	}

	if hasRepeatedRun(password, 3) {
		score -= 15
		issues = append(issues, "repeated character runs")
	}
	if hasSequence(password, 4) {
		score -= 15
		issues = append(issues, "sequential characters")
	}
	if hasKeyboardRun(password, 4) {
		score -= 10
		issues = append(issues, "keyboard pattern")
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	level := StrengthWeak
	switch {
	case score >= 80:
		level = StrengthStrong
	case score >= 60:
		level = StrengthGood
	case score >= 40:
		level = StrengthFair
	}
	return StrengthReport{Score: score, Level: level, Issues: issues}
}

// CheckBreach does a k-anonymity range lookup: only the first five hex chars
// of the SHA-1 digest leave the process, the suffix is matched locally.
// Lookup failures fail open so registration never depends on the corpus
// being reachable.
func (s *PasswordService) CheckBreach(ctx context.Context, password string) BreachResult {
	sum := sha1.Sum([]byte(password))
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	prefix, suffix := digest[:5], digest[5:]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.breachBase+"/range/"+prefix, nil)
	if err != nil {
		return BreachResult{Degraded: true}
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.log.Warn().Err(err).Msg("breach lookup unavailable, failing open")
		return BreachResult{Degraded: true}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		s.log.Warn().Int("status", resp.StatusCode).Msg("breach lookup unavailable, failing open")
		return BreachResult{Degraded: true}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return BreachResult{Degraded: true}
	}
	for _, line := range strings.Split(string(body), "\n") {
		parts := strings.SplitN(strings.TrimSpace(line), ":", 2)
		if len(parts) != 2 {
			continue
		}
		if strings.EqualFold(parts[0], suffix) {
			count, _ := strconv.Atoi(parts[1])
			return BreachResult{Breached: true, Count: count}
		}
	}
	return BreachResult{}
}

const (
	lowerChars   = "abcdefghijklmnopqrstuvwxyz"
	upperChars   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars   = "0123456789"
	specialChars = "!@#$%^&*()-_=+[]{}"
)

// GenerateSecurePassword returns a random password containing all four
// character classes. Lengths under 12 are bumped to 12.
func (s *PasswordService) GenerateSecurePassword(length int) (string, error) {
	if length < 12 {
		length = 12
	}
	classes := []string{lowerChars, upperChars, digitChars, specialChars}
	all := strings.Join(classes, "")

	buf := make([]byte, length)
	// One draw from each class first, the rest from the full alphabet.
	for i := range buf {
		source := all
		if i < len(classes) {
			source = classes[i]
		}
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(source))))
		if err != nil {
			return "", err
		}
		buf[i] = source[n.Int64()]
	}
	// Shuffle so the guaranteed class characters are not positional.
	for i := len(buf) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		j := n.Int64()
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf), nil
}

func hasRepeatedRun(s string, runLen int) bool {
	run := 1
	for i := 1; i < len(s); i++ {
		if s[i] == s[i-1] {
			run++
			if run >= runLen {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

func hasSequence(s string, seqLen int) bool {
	asc, desc := 1, 1
	for i := 1; i < len(s); i++ {
		a, b := s[i-1], s[i]
		if !isDigit(a) || !isDigit(b) {
			asc, desc = 1, 1
			continue
		}
		if b == a+1 {
			asc++
			desc = 1
		} else if b == a-1 {
			desc++
			asc = 1
		} else {
			asc, desc = 1, 1
		}
		if asc >= seqLen || desc >= seqLen {
			return true
		}
	}
	return false
}

func hasKeyboardRun(s string, runLen int) bool {
	lowered := strings.ToLower(s)
	for _, row := range keyboardRows {
		reversed := reverse(row)
		for i := 0; i+runLen <= len(lowered); i++ {
			chunk := lowered[i : i+runLen]
			if strings.Contains(row, chunk) || strings.Contains(reversed, chunk) {
				return true
			}
		}
	}
	return false
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}
