package sim

import (
	"context"

	"github.com/aescanero/dafo/pkg/ports"
)

type nopJournal struct{}

func (nopJournal) Record(context.Context, func()) {}

func journalOrNop(j ports.Journal) ports.Journal {
	if j == nil {
		return nopJournal{}
	}
	return j
}
