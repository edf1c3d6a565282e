package extract

// CPUSolver is the host dense-linear-algebra patch solver. It runs the
// shared kernel directly, one patch at a time, allocating as it goes.
type CPUSolver struct{}

// Name implements PatchSolver.
func (*CPUSolver) Name() string { return SolverCPU }

// Solve implements PatchSolver.
func (*CPUSolver) Solve(req *PatchRequest) (*PatchResult, error) {
	return solvePadded(req, nil)
}
