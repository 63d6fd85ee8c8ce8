package loadgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/googly1030/intern-platform/internal/domain/model"
	"github.com/googly1030/intern-platform/pkg/logger"
)

func init() { _ = logger.Init() }

// fakeService scores member n with 90 - 5*(n/2) so pairs tie. The last
// member fails and has no rank.
type fakeService struct {
	mu      sync.Mutex
	members []SubmissionInput
	ids     []string
	started bool
	polls   int
}

func (f *fakeService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	})
	mux.HandleFunc("POST /batches", func(w http.ResponseWriter, r *http.Request) {
		var in BatchInput
		_ = json.NewDecoder(r.Body).Decode(&in)
		writeTestJSON(w, http.StatusCreated, Batch{ID: "b1", Name: in.Name, Status: model.BatchPending})
	})
	mux.HandleFunc("POST /batches/b1/submissions", func(w http.ResponseWriter, r *http.Request) {
		var req addRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		var res AddResult
		for _, m := range req.Submissions {
			id := fmt.Sprintf("s%03d", len(f.ids))
			f.members = append(f.members, m)
			f.ids = append(f.ids, id)
			res.IDs = append(res.IDs, id)
		}
		f.mu.Unlock()
		writeTestJSON(w, http.StatusCreated, res)
	})
	mux.HandleFunc("POST /batches/b1/start", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		f.started = true
		n := len(f.ids)
		f.mu.Unlock()
		writeTestJSON(w, http.StatusAccepted, StartResult{Enqueued: n})
	})
	mux.HandleFunc("GET /batches/b1", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.polls++
		b := Batch{ID: "b1", Status: model.BatchProcessing, Total: len(f.ids), Pending: len(f.ids)}
		if f.started && f.polls > 1 {
			b.Status = model.BatchCompleted
			b.Pending = 0
			b.Failed = 1
			b.Completed = len(f.ids) - 1
		}
		writeTestJSON(w, http.StatusOK, b)
	})
	mux.HandleFunc("GET /submissions/{id}/rank", func(w http.ResponseWriter, r *http.Request) {
		for _, e := range f.entries() {
			if e.SubmissionID == r.PathValue("id") {
				writeTestJSON(w, http.StatusOK, e)
				return
			}
		}
		writeTestJSON(w, http.StatusNotFound, map[string]string{"code": "not_found"})
	})
	mux.HandleFunc("GET /leaderboard", func(w http.ResponseWriter, r *http.Request) {
		entries := f.entries()
		if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n < len(entries) {
			entries = entries[:n]
		}
		writeTestJSON(w, http.StatusOK, entries)
	})
	mux.HandleFunc("GET /batches/b1/export", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		n := len(f.ids)
		f.mu.Unlock()
		var sb strings.Builder
		sb.WriteString("Rank,Candidate Name\n")
		for i := range n {
			fmt.Fprintf(&sb, "%d,cand-%d\n", i+1, i)
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(sb.String()))
	})
	return mux
}

func (f *fakeService) entries() []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Entry
	for i := 0; i < len(f.ids)-1; i++ {
		out = append(out, Entry{
			SubmissionID:  f.ids[i],
			CandidateName: f.members[i].CandidateName,
			BatchID:       "b1",
			OverallScore:  90 - 5*(i/2),
		})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Before(out[b]) })
	for i := range out {
		if i > 0 && out[i].OverallScore == out[i-1].OverallScore {
			out[i].Rank = out[i-1].Rank
			continue
		}
		out[i].Rank = i + 1
	}
	return out
}

func writeTestJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func TestRun(t *testing.T) {
	Convey("Given a scoring service that finishes the batch", t, func() {
		fake := &fakeService{}
		srv := httptest.NewServer(fake.handler())
		defer srv.Close()

		out := filepath.Join(t.TempDir(), "exports", "batch.csv")
		cfg := &Config{
			BaseURL:      srv.URL,
			Repos:        []string{"https://github.com/acme/a", "https://github.com/acme/b"},
			Submissions:  7,
			ChunkSize:    3,
			TopN:         4,
			Workers:      3,
			Timeout:      time.Second,
			PollInterval: 10 * time.Millisecond,
			Wait:         5 * time.Second,
			OutputFile:   out,
		}

		Convey("When the run completes", func() {
			stats, err := Run(context.Background(), cfg)

			Convey("Then every stage is accounted for", func() {
				So(err, ShouldBeNil)
				So(stats.SubmissionsGenerated, ShouldEqual, 7)
				So(stats.SubmissionsAdded, ShouldEqual, 7)
				So(stats.Completed, ShouldEqual, 6)
				So(stats.Failed, ShouldEqual, 1)
				So(stats.RankingsRetrieved, ShouldEqual, 6)
				So(stats.LeaderboardEntries, ShouldEqual, 4)
				So(stats.ExportRows, ShouldEqual, 7)
			})

			Convey("Then the export is written to the output file", func() {
				data, err := os.ReadFile(out)
				So(err, ShouldBeNil)
				So(string(data), ShouldStartWith, "Rank,Candidate Name\n")
			})
		})

		Convey("When no repositories are given", func() {
			cfg.Repos = nil
			_, err := Run(context.Background(), cfg)
			So(err, ShouldEqual, ErrNoRepos)
		})

		Convey("When the batch does not finish in time", func() {
			fake.polls = -1000
			cfg.Wait = 50 * time.Millisecond
			_, err := Run(context.Background(), cfg)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
		})
	})
}

func TestGenerateSubmissions(t *testing.T) {
	Convey("Given two repositories", t, func() {
		repos := []string{"https://github.com/acme/a", "https://github.com/acme/b"}

		Convey("Then repositories rotate and emails are unique", func() {
			got := GenerateSubmissions(5, repos)
			So(got, ShouldHaveLength, 5)
			So(got[0].RepoURL, ShouldEqual, repos[0])
			So(got[1].RepoURL, ShouldEqual, repos[1])
			So(got[4].RepoURL, ShouldEqual, repos[0])

			seen := map[string]bool{}
			for _, in := range got {
				So(in.Validate(), ShouldBeNil)
				So(seen[in.CandidateEmail], ShouldBeFalse)
				seen[in.CandidateEmail] = true
			}
		})

		Convey("Then nothing is generated without repositories", func() {
			So(GenerateSubmissions(3, nil), ShouldBeEmpty)
		})

		Convey("Then chunks cover every input", func() {
			chunks := chunk(GenerateSubmissions(7, repos), 3)
			So(chunks, ShouldHaveLength, 3)
			So(chunks[2], ShouldHaveLength, 1)
		})
	})
}

func TestVerifyLeaderboard(t *testing.T) {
	Convey("Given leaderboard entries", t, func() {
		Convey("Then competition ranks with ties pass", func() {
			entries := []Entry{
				{SubmissionID: "a", OverallScore: 90, Rank: 1},
				{SubmissionID: "b", OverallScore: 90, Rank: 1},
				{SubmissionID: "c", OverallScore: 80, Rank: 3},
			}
			So(VerifyLeaderboard(entries), ShouldBeNil)
			So(VerifyLeaderboard(nil), ShouldBeNil)
		})

		Convey("Then dense ranks are rejected", func() {
			entries := []Entry{
				{SubmissionID: "a", OverallScore: 90, Rank: 1},
				{SubmissionID: "b", OverallScore: 90, Rank: 1},
				{SubmissionID: "c", OverallScore: 80, Rank: 2},
			}
			So(VerifyLeaderboard(entries), ShouldNotBeNil)
		})

		Convey("Then an increasing score is rejected", func() {
			entries := []Entry{
				{SubmissionID: "a", OverallScore: 70, Rank: 1},
				{SubmissionID: "b", OverallScore: 90, Rank: 2},
			}
			So(VerifyLeaderboard(entries), ShouldNotBeNil)
		})

		Convey("Then a rank lookup disagreeing with the leaderboard is rejected", func() {
			entries := []Entry{{SubmissionID: "a", OverallScore: 90, Rank: 1}}
			So(VerifyAgainstRanks(entries, map[string]Entry{"a": {OverallScore: 90, Rank: 1}}), ShouldBeNil)
			So(VerifyAgainstRanks(entries, map[string]Entry{"a": {OverallScore: 90, Rank: 2}}), ShouldNotBeNil)
			So(VerifyAgainstRanks(entries, map[string]Entry{}), ShouldNotBeNil)
		})
	})
}

func TestCountExportRows(t *testing.T) {
	Convey("Given CSV exports", t, func() {
		n, err := CountExportRows([]byte("Rank,Name\n1,a\n2,\"b, c\"\n"))
		So(err, ShouldBeNil)
		So(n, ShouldEqual, 2)

		_, err = CountExportRows(nil)
		So(err, ShouldNotBeNil)
	})
}

func TestHTTPClientStatusError(t *testing.T) {
	Convey("Given a server that rejects the request", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			writeTestJSON(w, http.StatusTooManyRequests, map[string]string{"code": "backpressure"})
		}))
		defer srv.Close()

		err := NewHTTPClient(srv.URL, time.Second).Post(context.Background(), "/batches", BatchInput{Name: "x"}, http.StatusCreated, nil)

		Convey("Then the status and body are reported", func() {
			var se *StatusError
			So(err, ShouldHaveSameTypeAs, se)
			se = err.(*StatusError)
			So(se.Code, ShouldEqual, http.StatusTooManyRequests)
			So(se.Body, ShouldContainSubstring, "backpressure")
		})
	})
}
