package schema

import (
	"github.com/sirupsen/logrus"

	"flatcrawl/internal/fbfmt"
	"flatcrawl/internal/logging"
)

type classKey struct {
	parent *Class
	member int
	arm    int
}

// Registry owns every class of a session, keyed by structural position:
// the parent class, the member index within it and the union arm.
type Registry struct {
	opts    fbfmt.Options
	diags   *fbfmt.Diags
	journal *Journal
	log     logrus.FieldLogger

	root    *Class
	classes []*Class
	byKey   map[classKey]*Class
}

// NewRegistry creates a registry with an empty root class. Any of diags,
// journal and log may be nil.
func NewRegistry(opts fbfmt.Options, diags *fbfmt.Diags, journal *Journal, log logrus.FieldLogger) *Registry {
	if diags == nil {
		diags = &fbfmt.Diags{}
	}
	if log == nil {
		log = logging.Discard()
	}
	r := &Registry{
		opts:    opts,
		diags:   diags,
		journal: journal,
		log:     log,
		byKey:   make(map[classKey]*Class),
	}
	r.root = r.newClass(nil, -1, -1)
	return r
}

func (r *Registry) newClass(parent *Class, member, arm int) *Class {
	c := &Class{
		ID:      len(r.classes),
		Parent:  parent,
		Member:  member,
		Arm:     arm,
		reg:     r,
		vtables: make(map[int]struct{}),
	}
	r.classes = append(r.classes, c)
	return c
}

// Root returns the class of the root table.
func (r *Registry) Root() *Class { return r.root }

// Lookup returns the class for tables reached through member of parent
// (and union arm, or -1), creating it on first use.
func (r *Registry) Lookup(parent *Class, member, arm int) *Class {
	k := classKey{parent, member, arm}
	if c, ok := r.byKey[k]; ok {
		return c
	}
	c := r.newClass(parent, member, arm)
	r.byKey[k] = c
	_ = r.journal.Do(func() error {
		r.journal.Record(func() {
			delete(r.byKey, k)
			r.classes = r.classes[:len(r.classes)-1]
		})
		return nil
	})
	return c
}

// Classes returns every class in creation order.
func (r *Registry) Classes() []*Class {
	out := make([]*Class, len(r.classes))
	copy(out, r.classes)
	return out
}

// Children returns the classes directly below c.
func (r *Registry) Children(c *Class) []*Class {
	var out []*Class
	for _, x := range r.classes {
		if x.Parent == c {
			out = append(out, x)
		}
	}
	return out
}

// Options returns the policy the registry was created with.
func (r *Registry) Options() fbfmt.Options { return r.opts }

// Diags returns the shared diagnostic sink.
func (r *Registry) Diags() *fbfmt.Diags { return r.diags }

func (r *Registry) addDiag(offset int, kind fbfmt.DiagKind, format string, args ...any) {
	n := r.diags.Len()
	r.diags.Addf(offset, kind, format, args...)
	r.journal.Record(func() { r.diags.Truncate(n) })
}
