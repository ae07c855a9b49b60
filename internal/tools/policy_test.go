package tools

import "testing"

func TestPolicyProfiles(t *testing.T) {
	t.Parallel()

	cases := []struct {
		profile string
		tool    string
		want    bool
	}{
		{"full", "bash", true},
		{"full", "anything", true},
		{"coding", "bash", true},
		{"coding", "write", true},
		{"coding", "web_fetch", true},
		{"coding", "browser", false},
		{"minimal", "read", true},
		{"minimal", "glob", true},
		{"minimal", "grep", true},
		{"minimal", "bash", false},
		{"minimal", "write", false},
		{"none", "read", false},
		{"none", "bash", false},
		{"mystery", "bash", true}, // unknown profile behaves like full
	}
	for _, tc := range cases {
		if got := PolicyFromProfile(tc.profile).IsToolAllowed(tc.tool); got != tc.want {
			t.Fatalf("profile %q tool %q = %v, want %v", tc.profile, tc.tool, got, tc.want)
		}
	}
}

func TestIsCommandAllowed_Modes(t *testing.T) {
	t.Parallel()

	if !IsCommandAllowed("rm -rf /", nil, "full") {
		t.Fatalf("full mode must allow everything")
	}
	if IsCommandAllowed("ls", []string{"ls"}, "deny") {
		t.Fatalf("deny mode must block everything")
	}
	if IsCommandAllowed("ls", []string{"ls"}, "unknown") {
		t.Fatalf("unknown mode must block everything")
	}
}

func TestIsCommandAllowed_Allowlist(t *testing.T) {
	t.Parallel()

	cases := []struct {
		command   string
		allowlist []string
		want      bool
	}{
		{"git status", []string{"git "}, true},
		{"rm -rf", []string{"git "}, false},
		{"ls -la", []string{"ls"}, true},
		{"/bin/ls -la", []string{"ls"}, true},
		{"LS -la", []string{"ls"}, true},
		{"grep foo", []string{"git"}, false},

		// Shell chaining and substitution are rejected outright.
		{"git; rm -rf /", []string{"git"}, false},
		{"git && malicious", []string{"git"}, false},
		{"git || malicious", []string{"git"}, false},
		{"git log | rm -rf /", []string{"git"}, false},
		{"git `whoami`", []string{"git"}, false},
		{"git $(whoami)", []string{"git"}, false},
		{"git status\nrm -rf /", []string{"git"}, false},
		{"git status\rrm -rf /", []string{"git"}, false},
		{"cat << EOF", []string{"cat"}, false},
		{"diff <(cat /etc/shadow) /dev/null", []string{"diff"}, false},
		{"diff >(tee /tmp/out) /dev/null", []string{"diff"}, false},
	}
	for _, tc := range cases {
		if got := IsCommandAllowed(tc.command, tc.allowlist, "allowlist"); got != tc.want {
			t.Fatalf("IsCommandAllowed(%q, %v) = %v, want %v", tc.command, tc.allowlist, got, tc.want)
		}
	}
}
