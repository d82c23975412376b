package cursorbinary

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// ChecksumHeader and ClientKeyHeader name the two vendor-specific headers
// every call must carry alongside the fresh-per-call identifiers.
const (
	ChecksumHeader  = "X-Cursor-Checksum"
	ClientKeyHeader = "x-client-key"
)

// rollingKey derives a key that rotates daily, so a checksum computed on one
// day never replays as valid on another.
func rollingKey(now time.Time) []byte {
	h := sha256.Sum256([]byte(now.UTC().Format("2006-01-02")))
	return h[:8]
}

// Checksum XOR-scrambles a timestamp-derived byte sequence under the
// rolling key, base64url-encodes it, and appends the machine identifier.
func Checksum(now time.Time, machineID string) string {
	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, uint64(now.UnixMilli()))
	key := rollingKey(now)
	scrambled := make([]byte, len(ts))
	for i, b := range ts {
		scrambled[i] = b ^ key[i%len(key)]
	}
	return base64.RawURLEncoding.EncodeToString(scrambled) + machineID
}

// ClientKey is the hex SHA-256 of the bearer token, identifying the caller
// to the backend without transmitting the token itself in this header.
func ClientKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", sum)
}

// BuildHeaders mints the full per-call header set: fresh UUIDs for request/
// session/trace/config-version, the rolling checksum, and the client key.
func BuildHeaders(token, machineID string, now time.Time) http.Header {
	h := http.Header{}
	h.Set("x-request-id", uuid.NewString())
	h.Set("x-session-id", uuid.NewString())
	h.Set("x-cursor-config-version", uuid.NewString())
	h.Set("x-amzn-trace-id", uuid.NewString())
	h.Set(ClientKeyHeader, ClientKey(token))
	h.Set(ChecksumHeader, Checksum(now, machineID))
	h.Set("Authorization", "Bearer "+token)
	return h
}
