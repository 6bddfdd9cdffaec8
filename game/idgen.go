package game

import (
	"sync"

	"github.com/google/uuid"
)

const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Idgen hands out short room codes that are easy to type and read aloud.
// Codes start at minSize characters and grow when that size gets crowded.
type Idgen struct {
	ids     map[string]struct{}
	minSize int
	locker  sync.Mutex
}

func NewIdGen() *Idgen {
	return &Idgen{ids: make(map[string]struct{}), minSize: 5}
}

func (idgen *Idgen) Generate() string {
	idgen.locker.Lock()
	defer idgen.locker.Unlock()

	size := idgen.minSize
	for attempt := 1; ; attempt++ {
		id := roomCode(size)
		if _, taken := idgen.ids[id]; !taken {
			idgen.ids[id] = struct{}{}
			return id
		}
		if attempt%8 == 0 && size < 16 {
			size++
		}
	}
}

func (idgen *Idgen) Dispose(id string) {
	idgen.locker.Lock()
	delete(idgen.ids, id)
	idgen.locker.Unlock()
}

func roomCode(size int) string {
	code := randomBytes(size)
	for i, b := range code {
		code[i] = roomCodeAlphabet[int(b)%len(roomCodeAlphabet)]
	}
	return string(code)
}

// randomBytes draws n bytes from random UUIDs. The version and variant bytes
// are fixed in part and are skipped.
func randomBytes(n int) []byte {
	out := make([]byte, 0, n)
	for len(out) < n {
		for i, b := range uuid.New() {
			if i == 6 || i == 8 {
				continue
			}
			out = append(out, b)
			if len(out) == n {
				break
			}
		}
	}
	return out
}
