package runner

// State is the mutable state of a single run. It is created fresh per run
// and passed explicitly, never stored in a package variable, so that two
// runs in one process cannot bleed into each other.
type State struct {
	// validatedProjects caches tracker preflight results per project key so
	// credentials and project access are checked once per run.
	validatedProjects map[string]bool

	// created counts newly created tickets toward the run's creation cap.
	// Dry-run sentinel creations count too, so cap behavior can be rehearsed.
	created int
}

func NewState() *State {
	return &State{
		validatedProjects: make(map[string]bool),
	}
}

func (s *State) ProjectValidated(project string) bool {
	return s.validatedProjects[project]
}

func (s *State) MarkProjectValidated(project string) {
	s.validatedProjects[project] = true
}

func (s *State) CountCreated() {
	s.created++
}

func (s *State) Created() int {
	return s.created
}

// CapReached reports whether the creation cap is exhausted. A max of zero or
// less means no cap.
func (s *State) CapReached(max int) bool {
	return max > 0 && s.created >= max
}
