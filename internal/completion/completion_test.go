package completion

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/specarchive/pkg/types"
)

func TestParseTaskCounts(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		total     int
		completed int
	}{
		{"all done", "- [x] a\n- [x] b\n- [x] c\n", 3, 3},
		{"partial", "- [x] a\n- [ ] b\n", 2, 1},
		{"indented subtasks", "- [x] a\n  - [ ] a.1\n    - [x] a.2\n", 3, 2},
		{"uppercase X is not a task", "- [X] a\n- [x] b\n", 1, 1},
		{"other checkbox characters excluded", "- [-] a\n- [?] b\n- [ ] c\n", 1, 0},
		{"missing list marker excluded", "[x] a\n- [x] b\n", 1, 1},
		{"star marker excluded", "* [x] a\n", 0, 0},
		{"no space after checkbox", "- [x]a\n", 0, 0},
		{"crlf line endings", "- [x] a\r\n- [ ] b\r\n", 2, 1},
		{"prose only", "# Tasks\n\nNothing here yet.\n", 0, 0},
		{"empty", "", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseTaskCounts(tt.content)
			assert.Equal(t, tt.total, got.Total)
			assert.Equal(t, tt.completed, got.Completed)
		})
	}
}

func TestCheckCompletion(t *testing.T) {
	fs := afero.NewMemMapFs()
	d := NewDetector(fs)
	mtime := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	write := func(spec, content string) string {
		path := "/specs/" + spec
		require.NoError(t, afero.WriteFile(fs, path+"/tasks.md", []byte(content), 0o644))
		require.NoError(t, fs.Chtimes(path+"/tasks.md", mtime, mtime))
		return path
	}

	t.Run("all tasks complete", func(t *testing.T) {
		status, err := d.CheckCompletion(write("done", "- [x] a\n- [x] b\n- [x] c\n"))
		require.NoError(t, err)
		assert.Equal(t, types.CompletionStatus{IsComplete: true, TotalTasks: 3, CompletedTasks: 3, LastModified: mtime}, status)
	})

	t.Run("partially complete", func(t *testing.T) {
		status, err := d.CheckCompletion(write("partial", "- [x] a\n- [ ] b\n"))
		require.NoError(t, err)
		assert.False(t, status.IsComplete)
		assert.Equal(t, 2, status.TotalTasks)
		assert.Equal(t, 1, status.CompletedTasks)
	})

	t.Run("zero tasks is never complete", func(t *testing.T) {
		status, err := d.CheckCompletion(write("empty", "# Tasks\n"))
		require.NoError(t, err)
		assert.False(t, status.IsComplete)
		assert.Zero(t, status.TotalTasks)
	})

	t.Run("missing task document", func(t *testing.T) {
		require.NoError(t, fs.MkdirAll("/specs/bare", 0o755))
		_, err := d.CheckCompletion("/specs/bare")
		assert.ErrorIs(t, err, types.ErrNotFound)
	})
}

func TestCompletionPercentage(t *testing.T) {
	fs := afero.NewMemMapFs()
	d := NewDetector(fs)

	tests := []struct {
		content string
		want    int
	}{
		{"- [x] a\n- [ ] b\n- [ ] c\n", 33},
		{"- [x] a\n- [x] b\n- [ ] c\n", 67},
		{"- [x] a\n", 100},
		{"nothing\n", 0},
	}
	for i, tt := range tests {
		path := "/specs/s" + strings.Repeat("x", i)
		require.NoError(t, afero.WriteFile(fs, path+"/tasks.md", []byte(tt.content), 0o644))

		got, err := d.CompletionPercentage(path)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.content)
	}
}

func TestValidateFormat(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		valid     bool
		issueHas  string
		numIssues int
	}{
		{name: "valid", content: "- [x] a\n- [ ] b\n", valid: true},
		{name: "empty", content: "", valid: false, issueHas: "file is empty", numIssues: 1},
		{name: "whitespace only", content: "  \n\n", valid: false, issueHas: "file is empty", numIssues: 1},
		{name: "no tasks", content: "# Plan\nsome prose\n", valid: false, issueHas: "no tasks found", numIssues: 1},
		{name: "bad checkbox character", content: "- [x] a\n- [X] b\n", valid: false, issueHas: `line 2: invalid checkbox character "X"`, numIssues: 1},
		{name: "wide checkbox", content: "- [x] a\n- [xx] b\n", valid: false, issueHas: "line 2: malformed checkbox", numIssues: 1},
		{name: "missing list marker", content: "- [x] a\n[ ] b\n", valid: false, issueHas: "missing the \"-\" list marker", numIssues: 1},
		{name: "star marker", content: "- [x] a\n* [ ] b\n", valid: false, issueHas: "unsupported list marker", numIssues: 1},
		{name: "only malformed lines", content: "- [?] a\n", valid: false, issueHas: "no tasks found", numIssues: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateFormat(tt.content)
			assert.Equal(t, tt.valid, got.IsValid)
			if tt.valid {
				assert.Empty(t, got.Issues)
				return
			}
			assert.Len(t, got.Issues, tt.numIssues)
			assert.Contains(t, strings.Join(got.Issues, "\n"), tt.issueHas)
		})
	}
}

// TestCompletenessProperty checks isComplete <=> total > 0 && completed == total
// over randomly generated task documents.
func TestCompletenessProperty(t *testing.T) {
	fragments := []string{
		"- [x] done", "- [ ] open", "  - [x] nested done", "- [X] upper",
		"- [-] dash", "[x] bare", "* [ ] star", "# heading", "", "prose",
	}
	if testing.Short() {
		t.Skip("seeded property run")
	}
	rng := rand.New(rand.NewSource(42))
	fs := afero.NewMemMapFs()
	d := NewDetector(fs)

	for i := 0; i < 500; i++ {
		n := rng.Intn(12)
		lines := make([]string, n)
		wantTotal, wantDone := 0, 0
		for j := range lines {
			frag := fragments[rng.Intn(len(fragments))]
			lines[j] = frag
			switch frag {
			case "- [x] done", "  - [x] nested done":
				wantTotal++
				wantDone++
			case "- [ ] open":
				wantTotal++
			}
		}

		path := "/p/spec"
		require.NoError(t, afero.WriteFile(fs, path+"/tasks.md", []byte(strings.Join(lines, "\n")), 0o644))

		status, err := d.CheckCompletion(path)
		require.NoError(t, err)
		assert.Equal(t, wantTotal, status.TotalTasks)
		assert.Equal(t, wantDone, status.CompletedTasks)
		assert.Equal(t, status.TotalTasks > 0 && status.CompletedTasks == status.TotalTasks, status.IsComplete)
	}
}
