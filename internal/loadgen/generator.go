package loadgen

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var firstNames = []string{
	"Ada", "Grace", "Linus", "Barbara", "Ken", "Margaret", "Dennis", "Frances",
	"Edsger", "Radia", "Donald", "Hedy", "Alan", "Katherine", "Niklaus", "Sophie",
}

// GenerateSubmissions builds n batch members. Repositories are assigned
// round-robin, and every candidate gets a unique email.
func GenerateSubmissions(n int, repos []string) []SubmissionInput {
	if n <= 0 || len(repos) == 0 {
		return nil
	}
	out := make([]SubmissionInput, n)
	for i := range out {
		name := firstNames[i%len(firstNames)]
		tag := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		out[i] = SubmissionInput{
			CandidateName:  fmt.Sprintf("%s %03d", name, i+1),
			CandidateEmail: fmt.Sprintf("%s.%s@loadgen.test", strings.ToLower(name), tag),
			RepoURL:        repos[i%len(repos)],
		}
	}
	return out
}

// chunk splits inputs into slices of at most size members.
func chunk(inputs []SubmissionInput, size int) [][]SubmissionInput {
	var chunks [][]SubmissionInput
	for start := 0; start < len(inputs); start += size {
		end := min(start+size, len(inputs))
		chunks = append(chunks, inputs[start:end])
	}
	return chunks
}
