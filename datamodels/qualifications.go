package datamodels

// Qualifications extracted from a job posting.
type Qualifications struct {
	Required  []string `json:"required"`
	Preferred []string `json:"preferred"`
}

// Empty reports whether no qualifications were extracted.
func (q Qualifications) Empty() bool {
	return len(q.Required) == 0 && len(q.Preferred) == 0
}

// Clone returns a deep copy.
func (q Qualifications) Clone() Qualifications {
	return Qualifications{
		Required:  cloneStrings(q.Required),
		Preferred: cloneStrings(q.Preferred),
	}
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
