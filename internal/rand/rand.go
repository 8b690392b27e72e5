package rand

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
)

const (
	bytesInUint64 = 8
	charset       = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789" // reduced base64
)

var charsetLen = len(charset)

var defaultRandBytes = newRandBytes()

func newRandBytes() *randBytes {
	randomBytes := make([]byte, bytesInUint64*2)

	if _, err := cryptorand.Read(randomBytes); err != nil {
		panic("unreachable")
	}

	return &randBytes{
		//nolint:gosec // request ids are not security sensitive
		rng: rand.New(rand.NewPCG(
			binary.LittleEndian.Uint64(randomBytes[:8]),
			binary.LittleEndian.Uint64(randomBytes[8:]),
		)),
	}
}

type randBytes struct {
	mut sync.Mutex
	rng *rand.Rand
}

// read fills bytes with random bytes. It never fails and always fills
// bytes entirely.
func (rb *randBytes) read(bytes []byte) {
	rb.mut.Lock()
	defer rb.mut.Unlock()

	numUint64s := len(bytes) / bytesInUint64
	for i := range numUint64s {
		binary.LittleEndian.PutUint64(bytes[i*bytesInUint64:(i+1)*bytesInUint64], rb.rng.Uint64())
	}

	if remaining := len(bytes) % bytesInUint64; remaining > 0 {
		var chunk [bytesInUint64]byte
		binary.LittleEndian.PutUint64(chunk[:], rb.rng.Uint64())
		copy(bytes[numUint64s*bytesInUint64:], chunk[:remaining])
	}
}

// NewRequestID returns a random identifier attached to every request the
// SDK sends, so that client and service logs can be correlated.
// Distribution over the charset is slightly non-uniform, which is
// acceptable for correlation ids.
func NewRequestID(requestIDLength int) string {
	buf := make([]byte, requestIDLength)
	defaultRandBytes.read(buf)

	for i, b := range buf {
		buf[i] = charset[int(b)%charsetLen]
	}

	return string(buf)
}
