package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/zulandar/procurebot/internal/api"
	"github.com/zulandar/procurebot/internal/models"
)

var (
	// ErrStale is returned when a response arrives for an email or login
	// that has since been replaced; the response is discarded.
	ErrStale = errors.New("dashboard: stale response discarded")
	// ErrConfirmation is returned when re-entered credentials do not match
	// the logged-in buyer.
	ErrConfirmation = errors.New("dashboard: credentials do not match the logged-in buyer")
	// ErrNotLoggedIn is returned by operations that need a loaded list.
	ErrNotLoggedIn = errors.New("dashboard: not logged in")
)

// Tab selects which negotiations the list shows.
type Tab string

const (
	TabActive    Tab = "active"
	TabConcluded Tab = "concluded"
	TabAll       Tab = "all"
)

// ParseTab maps a query value to a Tab, defaulting to TabActive.
func ParseTab(s string) Tab {
	switch Tab(strings.ToLower(strings.TrimSpace(s))) {
	case TabConcluded:
		return TabConcluded
	case TabAll:
		return TabAll
	default:
		return TabActive
	}
}

// Backend is the part of the backend client the dashboard uses.
type Backend interface {
	CodeExists(ctx context.Context, email string) (bool, error)
	ListByBuyer(ctx context.Context, creds api.Credentials) ([]models.Negotiation, error)
	DeleteNegotiation(ctx context.Context, id string, creds api.Credentials) error
}

// Counters are the aggregate figures above the list.
type Counters struct {
	Total     int
	Active    int
	Concluded int
	Suppliers int // distinct trimmed supplier names
}

// Query is the dashboard's state: the buyer being looked up, the fetched
// list and the client-side tab and search. Derived views are computed from
// the fetched list without further backend calls. Safe for concurrent use.
type Query struct {
	backend Backend

	mu         sync.Mutex
	gen        uint64
	email      string
	codeExists *bool
	creds      *api.Credentials
	list       []models.Negotiation
	tab        Tab
	search     string
	lastErr    error
}

// NewQuery returns an empty Query on the active tab.
func NewQuery(backend Backend) *Query {
	return &Query{backend: backend, tab: TabActive}
}

// CheckEmail asks whether a dashboard code exists for email. It does not
// authenticate; it clears any loaded list and the previous login.
func (q *Query) CheckEmail(ctx context.Context, email string) (bool, error) {
	email = strings.TrimSpace(email)
	q.mu.Lock()
	q.gen++
	gen := q.gen
	q.email = email
	q.codeExists = nil
	q.creds = nil
	q.list = nil
	q.lastErr = nil
	q.mu.Unlock()

	exists, err := q.backend.CodeExists(ctx, email)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.gen != gen {
		return false, ErrStale
	}
	if err != nil {
		q.lastErr = err
		return false, fmt.Errorf("dashboard: check email: %w", err)
	}
	q.codeExists = &exists
	return exists, nil
}

// Login fetches the buyer's negotiations. On failure the list stays empty
// and the error is kept for display.
func (q *Query) Login(ctx context.Context, email, code string) error {
	creds := api.Credentials{Email: strings.TrimSpace(email), Code: strings.TrimSpace(code)}
	q.mu.Lock()
	q.gen++
	gen := q.gen
	q.email = creds.Email
	q.creds = nil
	q.list = nil
	q.lastErr = nil
	q.mu.Unlock()

	list, err := q.backend.ListByBuyer(ctx, creds)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.gen != gen {
		return ErrStale
	}
	if err != nil {
		q.lastErr = err
		return fmt.Errorf("dashboard: login: %w", err)
	}
	q.creds = &creds
	q.list = list
	return nil
}

// Logout drops the list and credentials.
func (q *Query) Logout() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.gen++
	q.creds = nil
	q.list = nil
	q.codeExists = nil
	q.lastErr = nil
}

// Delete removes a negotiation on the backend after checking that creds
// match the logged-in buyer. On success the item is removed from the local
// list without re-fetching; on failure the list is unchanged. A delete that
// completes after the list was replaced still reports success.
func (q *Query) Delete(ctx context.Context, id string, creds api.Credentials) error {
	creds = api.Credentials{Email: strings.TrimSpace(creds.Email), Code: strings.TrimSpace(creds.Code)}
	q.mu.Lock()
	if q.creds == nil {
		q.mu.Unlock()
		return ErrNotLoggedIn
	}
	if !strings.EqualFold(creds.Email, q.creds.Email) || creds.Code != q.creds.Code {
		q.mu.Unlock()
		return ErrConfirmation
	}
	gen := q.gen
	q.mu.Unlock()

	if err := q.backend.DeleteNegotiation(ctx, id, creds); err != nil {
		return fmt.Errorf("dashboard: delete %s: %w", id, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.gen != gen {
		// The deletion succeeded; the list it belonged to is gone.
		return nil
	}
	kept := q.list[:0:0]
	for _, n := range q.list {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	q.list = kept
	return nil
}

// SetTab selects the tab.
func (q *Query) SetTab(t Tab) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tab = t
}

// SetSearch sets the free-text search.
func (q *Query) SetSearch(s string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.search = s
}

// View is a consistent snapshot of the dashboard state.
type View struct {
	Email      string
	CodeExists *bool
	LoggedIn   bool
	Tab        Tab
	Search     string
	Items      []models.Negotiation // tab and search applied
	Counters   Counters             // over the whole fetched list
	Err        error
}

// View returns the current state with derived views applied.
func (q *Query) View() View {
	q.mu.Lock()
	defer q.mu.Unlock()
	return View{
		Email:      q.email,
		CodeExists: q.codeExists,
		LoggedIn:   q.creds != nil,
		Tab:        q.tab,
		Search:     q.search,
		Items:      Search(FilterTab(q.list, q.tab), q.search),
		Counters:   Count(q.list),
		Err:        q.lastErr,
	}
}

// FilterTab keeps the negotiations that belong on tab. Anything not
// concluded counts as active.
func FilterTab(list []models.Negotiation, tab Tab) []models.Negotiation {
	out := make([]models.Negotiation, 0, len(list))
	for _, n := range list {
		switch {
		case tab == TabAll,
			tab == TabConcluded && n.IsConcluded(),
			tab == TabActive && !n.IsConcluded():
			out = append(out, n)
		}
	}
	return out
}

// Search keeps the negotiations whose name, status or any supplier name
// contains text, case-insensitively. Blank text keeps everything.
func Search(list []models.Negotiation, text string) []models.Negotiation {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return list
	}
	out := make([]models.Negotiation, 0, len(list))
	for _, n := range list {
		if matches(n, needle) {
			out = append(out, n)
		}
	}
	return out
}

func matches(n models.Negotiation, needle string) bool {
	if strings.Contains(strings.ToLower(n.Name), needle) || strings.Contains(strings.ToLower(n.Status), needle) {
		return true
	}
	for _, name := range n.TargetDetails.SupplierNames() {
		if strings.Contains(strings.ToLower(name), needle) {
			return true
		}
	}
	return false
}

// Count computes the dashboard counters of list.
func Count(list []models.Negotiation) Counters {
	c := Counters{Total: len(list)}
	suppliers := make(map[string]struct{})
	for _, n := range list {
		if n.IsConcluded() {
			c.Concluded++
		} else {
			c.Active++
		}
		for _, name := range n.TargetDetails.SupplierNames() {
			suppliers[name] = struct{}{}
		}
	}
	c.Suppliers = len(suppliers)
	return c
}
