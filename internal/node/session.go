package node

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"flatcrawl/internal/fbfmt"
	"flatcrawl/internal/logging"
	"flatcrawl/internal/region"
	"flatcrawl/internal/schema"
	"flatcrawl/internal/vtable"
)

type vtKey struct {
	class *schema.Class
	loc   int
}

// Session is the mutable crawl state over one buffer: claimed regions,
// vtable references, shared classes and diagnostics. It is not safe for
// concurrent use.
type Session struct {
	ID uuid.UUID

	buf     *fbfmt.Buffer
	opts    fbfmt.Options
	log     logrus.FieldLogger
	tracker *region.Tracker
	journal *schema.Journal
	classes *schema.Registry
	diags   *fbfmt.Diags
	vtables map[vtKey]*vtable.VTable
	root    *Root
}

// Open decodes the root table of buf. A nil log discards output.
func Open(buf *fbfmt.Buffer, opts fbfmt.Options, log logrus.FieldLogger) (*Session, error) {
	if log == nil {
		log = logging.Discard()
	}
	id := uuid.New()
	s := &Session{
		ID:      id,
		buf:     buf,
		opts:    opts,
		log:     log.WithField("session", id.String()),
		tracker: region.NewTracker(),
		journal: &schema.Journal{},
		diags:   &fbfmt.Diags{},
		vtables: make(map[vtKey]*vtable.VTable),
	}
	s.classes = schema.NewRegistry(opts, s.diags, s.journal, s.log)

	err := s.atomic(func() error {
		root, err := s.decodeRoot()
		if err != nil {
			return err
		}
		if err := s.commit(root); err != nil {
			return err
		}
		s.root = root
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("node: open root: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"size":  buf.Len(),
		"table": fmt.Sprintf("0x%x", s.root.dataOff),
		"magic": s.root.magic,
	}).Debug("opened buffer")
	return s, nil
}

func (s *Session) Root() *Root                { return s.root }
func (s *Session) Buffer() *fbfmt.Buffer      { return s.buf }
func (s *Session) Tracker() *region.Tracker   { return s.tracker }
func (s *Session) Classes() *schema.Registry  { return s.classes }
func (s *Session) Diags() *fbfmt.Diags        { return s.diags }
func (s *Session) Options() fbfmt.Options     { return s.opts }
func (s *Session) Logger() logrus.FieldLogger { return s.log }

// atomic runs fn and undoes every session mutation it made if it fails.
func (s *Session) atomic(fn func() error) error {
	return s.journal.Do(func() error {
		snap := s.tracker.Snapshot()
		s.journal.Record(func() { s.tracker.Restore(snap) })
		return fn()
	})
}

// vtable decodes (or returns the cached) vtable at loc for class. Each
// class keeps its own copy since size reconciliation is per class.
func (s *Session) vtable(class *schema.Class, loc int) (*vtable.VTable, error) {
	k := vtKey{class, loc}
	if vt, ok := s.vtables[k]; ok {
		return vt, nil
	}
	vt, err := vtable.Decode(s.buf, loc)
	if err != nil {
		return nil, err
	}
	if class != nil {
		s.vtables[k] = vt
		s.journal.Record(func() { delete(s.vtables, k) })
	}
	return vt, nil
}

// commit installs the claims of n and its materialized descendants,
// retains vtables and subscribes tables to their classes.
func (s *Session) commit(n Node) error {
	b := n.core()
	for _, r := range b.claims {
		if err := s.tracker.Claim(r); err != nil {
			return err
		}
	}
	switch n := n.(type) {
	case *Root:
		return s.commitTable(&n.Table)
	case *Object:
		return s.commitTable(&n.Table)
	case *ObjectArray:
		for _, e := range n.entries {
			if err := s.commit(e); err != nil {
				return err
			}
		}
	case *StringArray:
		for _, e := range n.entries {
			if err := s.commit(e); err != nil {
				return err
			}
		}
	case *Union:
		if n.inner != nil {
			return s.commit(n.inner)
		}
	case *StructArray, *Scalar, *String:
	}
	return nil
}

func (s *Session) commitTable(t *Table) error {
	if err := s.tracker.Retain(region.Range{
		Offset:      t.vt.Location,
		Length:      t.vt.Length,
		Category:    region.CategoryVTable,
		Description: "vtable",
	}); err != nil {
		return err
	}
	if err := t.class.AssociateVTable(t.vt); err != nil {
		return err
	}
	t.token = t.class.Subscribe(t)
	return nil
}

// release gives back everything commit installed for n.
func (s *Session) release(n Node) {
	b := n.core()
	for _, r := range b.claims {
		s.tracker.Unclaim(r)
	}
	switch n := n.(type) {
	case *Root:
		s.releaseTable(&n.Table)
	case *Object:
		s.releaseTable(&n.Table)
	case *ObjectArray:
		for _, e := range n.entries {
			s.release(e)
		}
	case *StringArray:
		for _, e := range n.entries {
			s.release(e)
		}
	case *Union:
		if n.inner != nil {
			s.release(n.inner)
		}
	case *StructArray, *Scalar, *String:
	}
}

func (s *Session) releaseTable(t *Table) {
	for _, c := range t.children {
		if c != nil {
			s.release(c)
		}
	}
	s.tracker.Release(t.vt.Location)
	t.class.Unsubscribe(t.token)
}
