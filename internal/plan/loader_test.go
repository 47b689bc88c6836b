package plan

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const samplePlan = `
tasks:
  - id: build-api
    title: Build the API layer
    priority: 1
  - id: build-ui
    title: Build the UI
    depends_on: [build-api]
  - id: deploy
    title: Deploy to staging
    priority: 3
    depends_on: [build-api, build-ui]
`

func TestParse(t *testing.T) {
	tasks, err := Parse([]byte(samplePlan))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}

	if tasks[0].ID != "build-api" || tasks[0].Priority != 1 {
		t.Errorf("first task = %+v", tasks[0])
	}
	if tasks[1].Priority != DefaultPriority {
		t.Errorf("omitted priority should default to %d, got %d", DefaultPriority, tasks[1].Priority)
	}
	if len(tasks[2].DependsOn) != 2 {
		t.Errorf("deploy deps = %v", tasks[2].DependsOn)
	}
}

func TestParseMissingID(t *testing.T) {
	_, err := Parse([]byte("tasks:\n  - title: no id\n"))
	if err == nil || !strings.Contains(err.Error(), "missing id") {
		t.Errorf("expected missing id error, got %v", err)
	}
}

func TestParseMissingTitle(t *testing.T) {
	_, err := Parse([]byte("tasks:\n  - id: a\n"))
	if err == nil || !strings.Contains(err.Error(), "missing title") {
		t.Errorf("expected missing title error, got %v", err)
	}
}

func TestParseDuplicateID(t *testing.T) {
	doc := `
tasks:
  - id: a
    title: first
  - id: a
    title: second
`
	_, err := Parse([]byte(doc))
	if err == nil || !strings.Contains(err.Error(), "duplicate id") {
		t.Errorf("expected duplicate id error, got %v", err)
	}
}

func TestParseInvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("tasks: [}")); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	if err := os.WriteFile(path, []byte(samplePlan), 0644); err != nil {
		t.Fatalf("write plan: %v", err)
	}

	tasks, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(tasks) != 3 {
		t.Errorf("expected 3 tasks, got %d", len(tasks))
	}
}

func TestWatchDeliversNewTasks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	if err := os.WriteFile(path, []byte(samplePlan), 0644); err != nil {
		t.Fatalf("write plan: %v", err)
	}

	w, err := Watch(path, nil)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Close()

	grown := samplePlan + `
  - id: smoke-test
    title: Run smoke tests
    depends_on: [deploy]
`
	if err := os.WriteFile(path, []byte(grown), 0644); err != nil {
		t.Fatalf("rewrite plan: %v", err)
	}

	select {
	case fresh := <-w.Tasks():
		if len(fresh) != 1 || fresh[0].ID != "smoke-test" {
			t.Errorf("expected [smoke-test], got %+v", fresh)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("new task never delivered")
	}
}

func TestWatchIgnoresUnchangedTasks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	if err := os.WriteFile(path, []byte(samplePlan), 0644); err != nil {
		t.Fatalf("write plan: %v", err)
	}

	w, err := Watch(path, nil)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer w.Close()

	// Rewrite with the same content; nothing new should arrive.
	if err := os.WriteFile(path, []byte(samplePlan), 0644); err != nil {
		t.Fatalf("rewrite plan: %v", err)
	}

	select {
	case fresh := <-w.Tasks():
		t.Errorf("unexpected delivery: %+v", fresh)
	case <-time.After(300 * time.Millisecond):
	}
}
