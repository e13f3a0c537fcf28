package domain

import (
	"sort"
	"strings"
)

type Status string

const (
	StatusRequested  Status = "requested"
	StatusConfirmed  Status = "confirmed"
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCanceled   Status = "canceled"
)

var AllStatuses = []Status{
	StatusRequested,
	StatusConfirmed,
	StatusWaiting,
	StatusInProgress,
	StatusCompleted,
	StatusCanceled,
}

// StateMachine holds the allowed booking status edges.
type StateMachine struct {
	transitions map[Status][]Status
	initial     map[Status]bool
}

func NewStateMachine() *StateMachine {
	return &StateMachine{
		transitions: map[Status][]Status{
			StatusRequested:  {StatusConfirmed, StatusCanceled},
			StatusConfirmed:  {StatusInProgress, StatusCanceled},
			StatusWaiting:    {StatusConfirmed, StatusCanceled},
			StatusInProgress: {StatusCompleted},
			StatusCompleted:  {},
			StatusCanceled:   {},
		},
		initial: map[Status]bool{
			StatusRequested: true,
			StatusConfirmed: true,
			StatusWaiting:   true,
		},
	}
}

func (m *StateMachine) CanTransition(from, to Status) bool {
	for _, s := range m.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (m *StateMachine) Transition(from, to Status) error {
	if !m.CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

func (m *StateMachine) IsTerminal(s Status) bool {
	next, ok := m.transitions[s]
	return ok && len(next) == 0
}

func (m *StateMachine) IsInitial(s Status) bool {
	return m.initial[s]
}

// Reachable reports whether to can be reached from from in zero or more
// transitions.
func (m *StateMachine) Reachable(from, to Status) bool {
	seen := map[Status]bool{from: true}
	queue := []Status{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == to {
			return true
		}
		for _, next := range m.transitions[cur] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

func (m *StateMachine) Known(s Status) bool {
	_, ok := m.transitions[s]
	return ok
}

// Vocabulary resolves the status names used by different clients to the
// canonical set.
type Vocabulary struct {
	aliases map[string]Status
}

var defaultAliases = map[string]Status{
	"pending":     StatusRequested,
	"complete":    StatusCompleted,
	"done":        StatusCompleted,
	"cancelled":   StatusCanceled,
	"inprogress":  StatusInProgress,
	"in-progress": StatusInProgress,
}

// NewVocabulary merges extra aliases over the defaults. Aliases pointing at
// unknown statuses are ignored and returned so the caller can log them.
func NewVocabulary(extra map[string]string) (*Vocabulary, []string) {
	v := &Vocabulary{aliases: make(map[string]Status, len(defaultAliases)+len(extra))}
	for k, s := range defaultAliases {
		v.aliases[k] = s
	}
	var rejected []string
	for k, target := range extra {
		s := Status(strings.ToLower(strings.TrimSpace(target)))
		if !isCanonical(s) {
			rejected = append(rejected, k)
			continue
		}
		v.aliases[strings.ToLower(strings.TrimSpace(k))] = s
	}
	sort.Strings(rejected)
	return v, rejected
}

func (v *Vocabulary) Parse(s string) (Status, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if isCanonical(Status(key)) {
		return Status(key), nil
	}
	if v != nil {
		if st, ok := v.aliases[key]; ok {
			return st, nil
		}
	}
	return "", validationError("unknown status " + s)
}

func isCanonical(s Status) bool {
	for _, c := range AllStatuses {
		if c == s {
			return true
		}
	}
	return false
}
