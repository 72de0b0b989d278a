package version

import "testing"

func TestGetVersionInfo(t *testing.T) {
	info := GetVersionInfo()
	if info["version"] != Version {
		t.Errorf("version = %q, want %q", info["version"], Version)
	}
	if _, ok := info["git_commit"]; ok && GitCommit == "" {
		t.Error("git_commit present without GitCommit")
	}

	old := GitCommit
	GitCommit = "0123456789abcdef"
	defer func() { GitCommit = old }()
	if got := GetVersionInfo()["git_commit"]; got != GitCommit {
		t.Errorf("git_commit = %q, want %q", got, GitCommit)
	}
}
