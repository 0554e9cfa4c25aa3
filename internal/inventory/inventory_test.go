package inventory

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "volumes.txt")
	content := "vol1\n\n  vol2  \n# a comment\nvol3\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	want := []string{"vol1", "vol2", "vol3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load = %v, want %v", got, want)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Error("Load should fail for a missing file")
	}
}

func TestMerge(t *testing.T) {
	got := Merge([]string{"vol1", "vol2", "vol1"}, []string{"vol3", "vol2", ""})
	want := []string{"vol1", "vol2", "vol3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Merge = %v, want %v (dedupe, first-seen order)", got, want)
	}
}

func TestMergeEmpty(t *testing.T) {
	if got := Merge(nil, []string{}); got != nil {
		t.Errorf("Merge of empty input = %v, want nil", got)
	}
}
