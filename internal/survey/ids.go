package survey

import (
	"fmt"

	"github.com/google/uuid"
)

// ID strategies for RespondentId assignment.
const (
	IDSequential = "sequential"
	IDUUID       = "uuid"
)

// IDGenerator hands out respondent identifiers in submission order.
type IDGenerator interface {
	Next() any
}

// SequentialIDs yields 1, 2, 3, ... as int64. It makes runs reproducible.
type SequentialIDs struct {
	n int64
}

func (s *SequentialIDs) Next() any {
	s.n++
	return s.n
}

// UUIDs yields random version 4 UUID strings.
type UUIDs struct {
	// New overrides the generator in tests.
	New func() uuid.UUID
}

func (u *UUIDs) Next() any {
	if u.New != nil {
		return u.New().String()
	}
	return uuid.NewString()
}

// NewIDGenerator returns a fresh generator for one run. An empty strategy
// means sequential.
func NewIDGenerator(strategy string) (IDGenerator, error) {
	switch strategy {
	case "", IDSequential:
		return &SequentialIDs{}, nil
	case IDUUID:
		return &UUIDs{}, nil
	default:
		return nil, fmt.Errorf("survey: unknown id strategy %q", strategy)
	}
}

// assignIDs draws n identifiers and rejects duplicates.
func assignIDs(gen IDGenerator, n int) ([]any, error) {
	ids := make([]any, n)
	seen := make(map[any]struct{}, n)
	for i := range ids {
		id := gen.Next()
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("survey: id generator produced duplicate id %v", id)
		}
		seen[id] = struct{}{}
		ids[i] = id
	}
	return ids, nil
}
