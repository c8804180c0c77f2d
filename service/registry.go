package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Comcast/formflow/core"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/jsccast/yaml"
)

var validate = validator.New()

// FormExtensions are the file extensions the Registry reads.
var FormExtensions = []string{".yaml", ".yml", ".json"}

func isFormFile(name string) bool {
	ext := filepath.Ext(name)
	for _, x := range FormExtensions {
		if ext == x {
			return true
		}
	}
	return false
}

// ParseForm decodes a form from YAML (or JSON if the name ends in
// ".json").  If the form has no id, the base of the name (without
// the extension) is used.  The form is validated and compiled.
func ParseForm(name string, bs []byte) (*core.Form, error) {
	var f core.Form
	var err error
	if filepath.Ext(name) == ".json" {
		err = json.Unmarshal(bs, &f)
	} else {
		err = yaml.Unmarshal(bs, &f)
	}
	if err != nil {
		return nil, err
	}
	if f.Id == "" {
		base := filepath.Base(name)
		f.Id = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if err = CheckForm(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

// CheckForm validates the form's structure and compiles it.
func CheckForm(f *core.Form) error {
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("form '%s': %w", f.Id, err)
	}
	return f.Compile()
}

// Registry holds the compiled forms read from a directory.
type Registry struct {
	sync.RWMutex

	Dir     string
	Verbose bool

	// Debounce is how long Watch waits for changes to settle.
	Debounce time.Duration

	forms map[string]*core.Form
}

func NewRegistry(dir string) *Registry {
	return &Registry{
		Dir:      dir,
		Debounce: 200 * time.Millisecond,
		forms:    make(map[string]*core.Form, 32),
	}
}

func (r *Registry) logf(format string, args ...interface{}) {
	if r.Verbose {
		log.Printf("Registry."+format, args...)
	}
}

// Get returns the form with the given id (or nil).
func (r *Registry) Get(id string) *core.Form {
	r.RLock()
	defer r.RUnlock()
	return r.forms[id]
}

// Put checks the form and adds it (replacing any form with the same
// id).
func (r *Registry) Put(f *core.Form) error {
	if err := CheckForm(f); err != nil {
		return err
	}
	r.Lock()
	r.forms[f.Id] = f
	r.Unlock()
	return nil
}

// Ids returns the ids of the forms in lexical order.
func (r *Registry) Ids() []string {
	r.RLock()
	defer r.RUnlock()
	acc := make([]string, 0, len(r.forms))
	for id := range r.forms {
		acc = append(acc, id)
	}
	sort.Strings(acc)
	return acc
}

// Load reads all the form files in the directory.
//
// A file that can't be read or doesn't check out is logged and
// skipped, and the first such error is returned after the good forms
// are in place.  Forms whose files have gone away stay registered.
func (r *Registry) Load(ctx context.Context) error {
	if r.Dir == "" {
		return nil
	}

	r.logf("Load %s", r.Dir)

	entries, err := os.ReadDir(r.Dir)
	if err != nil {
		return err
	}

	var (
		forms = make(map[string]*core.Form, len(entries))
		first error
	)

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !isFormFile(name) {
			continue
		}
		f, err := r.read(filepath.Join(r.Dir, name))
		if err != nil {
			log.Printf("Registry %s: %s", name, err)
			if first == nil {
				first = fmt.Errorf("%s: %w", name, err)
			}
			continue
		}
		if _, have := forms[f.Id]; have {
			log.Printf("Registry %s: duplicate form id '%s'", name, f.Id)
		}
		forms[f.Id] = f
	}

	r.Lock()
	for id, f := range forms {
		r.forms[id] = f
	}
	n := len(r.forms)
	r.Unlock()

	log.Printf("Registry loaded %d forms (%d total)", len(forms), n)

	return first
}

func (r *Registry) read(filename string) (*core.Form, error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseForm(filename, bs)
}

// Watch reloads the forms when files in the directory change.  Watch
// blocks until the context is done.
//
// Sessions already using an old version of a form keep it until they
// begin again.
func (r *Registry) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err = w.Add(r.Dir); err != nil {
		return err
	}

	r.logf("Watch %s", r.Dir)

	var (
		timer   *time.Timer
		reloads = make(chan struct{}, 1)
	)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case e, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isFormFile(e.Name) || e.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			r.logf("Watch %s", e)
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(r.Debounce, func() {
				select {
				case reloads <- struct{}{}:
				default:
				}
			})

		case <-reloads:
			if err := r.Load(ctx); err != nil {
				log.Printf("Registry reload error %s", err)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Printf("Registry watch error %s", err)
		}
	}
}
