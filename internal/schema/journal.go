package schema

// Journal is an undo log shared by every mutation made during one
// navigation, so a failed operation can put the session back exactly as it
// found it.
type Journal struct {
	ops   []func()
	depth int
}

// Record appends an undo step. A nil journal records nothing.
func (j *Journal) Record(undo func()) {
	if j == nil {
		return
	}
	j.ops = append(j.ops, undo)
}

// Mark returns the current position for a later Rollback or Commit.
func (j *Journal) Mark() int {
	if j == nil {
		return 0
	}
	return len(j.ops)
}

// Rollback undoes every step recorded after mark, newest first.
func (j *Journal) Rollback(mark int) {
	if j == nil {
		return
	}
	for i := len(j.ops) - 1; i >= mark; i-- {
		j.ops[i]()
	}
	j.ops = j.ops[:mark]
}

// Commit keeps every step since mark. Committing the outermost mark drops
// the log.
func (j *Journal) Commit(mark int) {
	if j == nil {
		return
	}
	if mark == 0 && j.depth == 0 {
		j.ops = j.ops[:0]
	}
}

// Do runs fn as one transaction: a failure rolls back what fn recorded.
// Nested calls keep their steps for the enclosing Do; the outermost
// success drops the log.
func (j *Journal) Do(fn func() error) error {
	if j == nil {
		return fn()
	}
	mark := len(j.ops)
	j.depth++
	err := fn()
	j.depth--
	if err != nil {
		j.Rollback(mark)
		return err
	}
	j.Commit(mark)
	return nil
}

// Len returns the number of pending undo steps.
func (j *Journal) Len() int {
	if j == nil {
		return 0
	}
	return len(j.ops)
}
