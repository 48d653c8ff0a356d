package core

import "procurecore/pkg/domain"

// TransitionPolicy owns the per-method lifecycle graphs. The edge tables are
// built once from the canonical sequences plus the documented optional-stage
// skips, and are never mutated afterwards; callers receive copies.
type TransitionPolicy struct {
	edges map[Method]map[State][]State
}

// NewTransitionPolicy constructs the three fixed method graphs.
func NewTransitionPolicy() *TransitionPolicy {
	p := &TransitionPolicy{edges: make(map[Method]map[State][]State, len(methodSequences))}
	for method, seq := range methodSequences {
		graph := make(map[State][]State, len(seq))
		for i := 0; i < len(seq)-1; i++ {
			graph[seq[i]] = []State{seq[i+1]}
		}
		graph[seq[len(seq)-1]] = nil // terminal
		p.edges[method] = graph
	}

	// Posting may be skipped for small-value procurement.
	p.addEdge(domain.MethodSmallValueRFQ, domain.StateDraft, domain.StateRFQIssued)

	// Bulletins and the pre-bid conference are optional for bidding methods.
	for _, method := range []Method{domain.MethodPublicBidding, domain.MethodInfrastructure} {
		p.addEdge(method, domain.StatePosting, domain.StatePreBidConference)
		p.addEdge(method, domain.StatePosting, domain.StateBidSubmissionOpening)
		p.addEdge(method, domain.StateBidBulletin, domain.StateBidSubmissionOpening)
	}

	// Infrastructure projects cycle through billing and inspection until
	// acceptance.
	p.addEdge(domain.MethodInfrastructure, domain.StatePMTInspection, domain.StateProgressBilling)

	return p
}

func (p *TransitionPolicy) addEdge(method Method, from, to State) {
	graph := p.edges[method]
	for _, existing := range graph[from] {
		if existing == to {
			return
		}
	}
	graph[from] = append(graph[from], to)
}

// Allowed returns the fixed set of states reachable from the current state
// under the given method. The set is empty for terminal states and for states
// outside the method graph.
func (p *TransitionPolicy) Allowed(method Method, current State) []State {
	graph, ok := p.edges[method]
	if !ok {
		return nil
	}
	edges := graph[current]
	out := make([]State, len(edges))
	copy(out, edges)
	return out
}

// Permits reports whether from -> to is an edge of the method graph.
func (p *TransitionPolicy) Permits(method Method, from, to State) bool {
	graph, ok := p.edges[method]
	if !ok {
		return false
	}
	for _, s := range graph[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Known reports whether the state appears anywhere in the method graph.
func (p *TransitionPolicy) Known(method Method, state State) bool {
	graph, ok := p.edges[method]
	if !ok {
		return false
	}
	_, present := graph[state]
	return present
}
