// Package numbering produces unique, monotonic, human-readable entity
// numbers of the form {PREFIX}{zero-padded sequence}{2-digit year}.
//
// Next is a read-max-then-insert scheme: the caller allocates a number and
// immediately attempts the insert consuming it inside the same transaction.
// Two concurrent callers can read the same maximum, so the insert must be
// retried on a uniqueness violation, bounded at MaxAttempts.
package numbering

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
)

// MaxAttempts bounds the allocate-insert retry loop. Exhaustion surfaces as
// a conflict to the caller, never an open-ended spin.
const MaxAttempts = 3

type Pattern struct {
	Table  string
	Column string
	Prefix string
	Width  int // zero-padding width of the sequence component
}

type Generator struct {
	patterns map[string]Pattern
}

func New() *Generator {
	return &Generator{patterns: make(map[string]Pattern)}
}

func (g *Generator) Register(entityType string, p Pattern) {
	if p.Width <= 0 {
		p.Width = 4
	}
	g.patterns[entityType] = p
}

// Next scans existing numbers for the entity's current-year pattern, takes
// the maximum sequence, increments and formats. It must be called inside the
// transaction that inserts the row consuming the number.
func (g *Generator) Next(tx *gorm.DB, entityType string) (string, error) {
	p, ok := g.patterns[entityType]
	if !ok {
		return "", fmt.Errorf("no number pattern registered for entity type %q", entityType)
	}

	year := time.Now().Format("06")

	var numbers []string
	if err := tx.Table(p.Table).
		Where(p.Column+" LIKE ?", p.Prefix+"%"+year).
		Pluck(p.Column, &numbers).Error; err != nil {
		return "", fmt.Errorf("could not scan existing numbers: %w", err)
	}

	max := 0
	for _, n := range numbers {
		seq, ok := parseSequence(n, p.Prefix, year)
		if ok && seq > max {
			max = seq
		}
	}

	return fmt.Sprintf("%s%0*d%s", p.Prefix, p.Width, max+1, year), nil
}

func parseSequence(number, prefix, year string) (int, bool) {
	if !strings.HasPrefix(number, prefix) || !strings.HasSuffix(number, year) {
		return 0, false
	}
	mid := strings.TrimSuffix(strings.TrimPrefix(number, prefix), year)
	seq, err := strconv.Atoi(mid)
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}

// IsDuplicate reports whether an insert failed because the allocated number
// (or any unique column) was consumed by a concurrent writer.
func IsDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
