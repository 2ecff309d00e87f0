package cache

import "fmt"

// Op is an access that a Policy may react to.
type Op int

const (
	OpUpdate Op = iota // overwrite of an existing key via Add or Update
	OpGet
)

// Policy decides how accesses reorder entries. New keys always enter at
// the most-recent end; eviction always starts at the other end.
type Policy interface {
	Name() string
	// Promote reports whether op moves the entry to the most-recent end.
	Promote(op Op) bool
}

type insertionOrder struct{}

func (insertionOrder) Name() string    { return "insertion" }
func (insertionOrder) Promote(Op) bool { return false }

type recency struct{}

func (recency) Name() string    { return "recency" }
func (recency) Promote(Op) bool { return true }

// InsertionOrder evicts the oldest inserted entry first.
func InsertionOrder() Policy { return insertionOrder{} }

// Recency evicts the least recently used entry first.
func Recency() Policy { return recency{} }

// ParsePolicy returns the policy with the given name. The empty name
// selects InsertionOrder.
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "", "insertion":
		return InsertionOrder(), nil
	case "recency", "lru":
		return Recency(), nil
	default:
		return nil, fmt.Errorf("unknown cache policy %q", name)
	}
}
