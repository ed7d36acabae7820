package attendance

// Principal is a resolved caller identity. Authentication happens outside
// this package; Permits is the only authorization decision made here.
type Principal struct {
	TeacherID TeacherID
	Role      string
	Batches   []Batch
}

// Permits reports whether the caller may act on batch.
func (p Principal) Permits(batch Batch) bool {
	for _, b := range p.Batches {
		if b == batch {
			return true
		}
	}
	return false
}

// Authorize returns an AuthorizationError for the first batch not permitted.
func (p Principal) Authorize(batches ...Batch) error {
	for _, b := range batches {
		if !p.Permits(b) {
			return &AuthorizationError{TeacherID: p.TeacherID, Batch: b}
		}
	}
	return nil
}
