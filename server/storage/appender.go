package storage

import (
	"errors"
	"hash/maphash"
	"os"
	"path/filepath"
	"sync"
)

const lockStripes = 64

// Appender appends POST bodies to files under the root.
// Writes to the same resource are serialized for the whole open-append-close
// cycle, so each body lands in the file as one contiguous unit.
type Appender struct {
	root *Root

	// a name always maps to the same stripe; distinct names may share one
	seed  maphash.Seed
	locks [lockStripes]sync.Mutex
}

func NewAppender(root *Root) *Appender {
	return &Appender{root: root, seed: maphash.MakeSeed()}
}

// Append writes body followed by a newline to the resource named by target,
// creating the file and its parent directories if needed.
func (a *Appender) Append(target string, body []byte) error {
	name, ok := Clean(target)
	if !ok {
		return ErrNoResource
	}

	mu := a.lock(name)
	mu.Lock()
	defer mu.Unlock()

	if dir := filepath.Dir(name); dir != "." {
		if err := a.root.root.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	f, err := a.root.root.OpenFile(name, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}

	// single write for body and separator
	buf := make([]byte, 0, len(body)+1)
	buf = append(buf, body...)
	buf = append(buf, '\n')

	_, werr := f.Write(buf)
	return errors.Join(werr, f.Close())
}

func (a *Appender) lock(name string) *sync.Mutex {
	return &a.locks[maphash.String(a.seed, name)%lockStripes]
}
