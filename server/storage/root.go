// static root: resolving request targets to files without leaving the directory
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"syscall"
)

// Root is the static directory. All access goes through os.Root,
// so neither ".." nor a symlink can reach outside of it.
type Root struct {
	dir  string
	root *os.Root

	// the error os.Root reports for a path leaving the root
	escape error
}

// OpenRoot creates dir if needed and opens it as the static root.
func OpenRoot(dir string) (*Root, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create static root: %w", err)
	}
	r, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("open static root: %w", err)
	}
	return &Root{dir: dir, root: r, escape: escapeError(r)}, nil
}

// os keeps its escape error unexported, take it from a lexical escape
func escapeError(r *os.Root) error {
	_, err := r.Open("..")
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return pe.Err
	}
	return err
}

func (r *Root) Dir() string {
	return r.dir
}

func (r *Root) Close() error {
	return r.root.Close()
}

// Clean turns a request path into a name relative to the root.
// ".." segments are resolved lexically against "/", so "/../etc/passwd" becomes "etc/passwd".
// ok is false when nothing is left, i.e. the target is the root itself.
func Clean(target string) (name string, ok bool) {
	name = path.Clean("/" + target)[1:]
	if name == "" {
		return "", false
	}
	return filepath.FromSlash(name), true
}

// Open resolves target to a regular file.
// A missing file, a directory, a path through a non-directory or a symlink out
// of the root is reported as found == false with a nil error. Any other failure
// (permissions, I/O, a closed root) is returned as err. The caller closes the file.
func (r *Root) Open(target string) (f *os.File, found bool, err error) {
	name, ok := Clean(target)
	if !ok {
		return nil, false, nil
	}

	f, err = r.root.Open(name)
	if err != nil {
		if r.notFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, false, err
	}
	if !fi.Mode().IsRegular() {
		f.Close()
		return nil, false, nil
	}
	return f, true, nil
}

func (r *Root) notFound(err error) bool {
	return errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, syscall.ENOTDIR) ||
		errors.Is(err, syscall.ELOOP) ||
		(r.escape != nil && errors.Is(err, r.escape))
}
