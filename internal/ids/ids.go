// Package ids generates identifiers for ledger records.
package ids

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	entropy = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// NewTradeID returns a ULID stamped with at. IDs created in the same millisecond still sort
// in creation order.
func NewTradeID(at time.Time) (string, error) {
	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(at.UTC()), entropy)
	if err != nil {
		return "", fmt.Errorf("new trade id: %w", err)
	}
	return id.String(), nil
}

// NewPortfolioID returns a random UUID.
func NewPortfolioID() string {
	return uuid.NewString()
}
