package rubric

// Grade is a letter grade derived from the overall score.
type Grade string

// Grades from best to worst.
const (
	GradeAPlus Grade = "A+"
	GradeA     Grade = "A"
	GradeB     Grade = "B"
	GradeC     Grade = "C"
	GradeD     Grade = "D"
	GradeF     Grade = "F"
)

var breakpoints = []struct {
	min   int
	grade Grade
}{
	{90, GradeAPlus},
	{80, GradeA},
	{70, GradeB},
	{60, GradeC},
	{50, GradeD},
}

// GradeFor maps an overall score to a grade. It is total over int.
func GradeFor(overall int) Grade {
	for _, b := range breakpoints {
		if overall >= b.min {
			return b.grade
		}
	}
	return GradeF
}

// Grades returns every grade from best to worst.
func Grades() []Grade {
	return []Grade{GradeAPlus, GradeA, GradeB, GradeC, GradeD, GradeF}
}

// RecommendationFor returns the hiring recommendation for g.
func RecommendationFor(g Grade) string {
	switch g {
	case GradeAPlus:
		return "Strong interview candidate"
	case GradeA:
		return "Interview recommended"
	case GradeB:
		return "Consider for interview"
	case GradeC:
		return "Request more information"
	case GradeD:
		return "Reject with feedback"
	default:
		return "Auto-reject"
	}
}
