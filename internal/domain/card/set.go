package card

import (
	"sort"

	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/samber/lo"
)

// Set is the ordered collection of one tenant's cards. It enforces the
// capacity limit, duplicate detection and the single-primary rule; callers
// persist the cards it reports as changed.
type Set struct {
	cards []*Card
	max   int
}

// NewSet orders cards oldest first, with ID as a tie breaker
func NewSet(cards []*Card, max int) *Set {
	ordered := append([]*Card(nil), cards...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})
	return &Set{cards: ordered, max: max}
}

func (s *Set) Cards() []*Card {
	return s.cards
}

func (s *Set) Len() int {
	return len(s.cards)
}

// Primary returns the primary card or nil when the set is empty
func (s *Set) Primary() *Card {
	c, ok := lo.Find(s.cards, func(c *Card) bool { return c.IsPrimary })
	if !ok {
		return nil
	}
	return c
}

func (s *Set) Find(id string) (*Card, bool) {
	return lo.Find(s.cards, func(c *Card) bool { return c.ID == id })
}

// CheckCapacity fails when the set has no room for another card
func (s *Set) CheckCapacity() error {
	if len(s.cards) >= s.max {
		return ierr.NewError("card limit reached").
			WithHintf("At most %d cards can be registered", s.max).
			WithReportableDetails(map[string]any{
				"max_cards": s.max,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Add appends c. The first card is always primary; otherwise c becomes
// primary only when asked, demoting the current primary.
func (s *Set) Add(c *Card, makePrimary bool) (demoted []*Card, err error) {
	if err := s.CheckCapacity(); err != nil {
		return nil, err
	}
	if _, dup := lo.Find(s.cards, func(existing *Card) bool { return existing.CardInfo.SameCard(c.CardInfo) }); dup {
		return nil, ierr.NewError("card already registered").
			WithHint("This card is already registered").
			WithReportableDetails(map[string]any{
				"company": c.CardInfo.Company,
				"number":  c.CardInfo.Number,
			}).
			Mark(ierr.ErrAlreadyExists)
	}

	c.IsPrimary = len(s.cards) == 0 || makePrimary
	if c.IsPrimary {
		demoted = s.demoteAll()
	}
	s.cards = append(s.cards, c)
	return demoted, nil
}

// SetPrimary promotes the card with the given id and demotes all others
func (s *Set) SetPrimary(id string) (primary *Card, demoted []*Card, err error) {
	c, ok := s.Find(id)
	if !ok {
		return nil, nil, notFound(id)
	}
	if c.IsPrimary {
		return c, nil, nil
	}
	demoted = s.demoteAll()
	c.IsPrimary = true
	return c, demoted, nil
}

// Remove drops the card. When it was primary the oldest remaining card is
// promoted; promoted is nil if nothing had to change or nothing remains.
func (s *Set) Remove(id string) (removed *Card, promoted *Card, err error) {
	c, ok := s.Find(id)
	if !ok {
		return nil, nil, notFound(id)
	}
	s.cards = lo.Reject(s.cards, func(existing *Card, _ int) bool { return existing.ID == id })
	if c.IsPrimary && len(s.cards) > 0 {
		promoted = s.cards[0]
		promoted.IsPrimary = true
	}
	return c, promoted, nil
}

func (s *Set) demoteAll() []*Card {
	var demoted []*Card
	for _, existing := range s.cards {
		if existing.IsPrimary {
			existing.IsPrimary = false
			demoted = append(demoted, existing)
		}
	}
	return demoted
}

func notFound(id string) error {
	return ierr.NewError("card not found").
		WithHint("Card not found").
		WithReportableDetails(map[string]any{
			"card_id": id,
		}).
		Mark(ierr.ErrNotFound)
}
