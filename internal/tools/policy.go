package tools

import (
	"path/filepath"
	"strings"
)

// Policy controls which tools the model may call.
//
// Profiles:
//   - full:    all tools
//   - coding:  filesystem + bash + web_fetch
//   - minimal: read-only tools
//   - none:    nothing
type Policy struct {
	profile string
}

// PolicyFromProfile builds a Policy. Unknown profiles behave like "full".
func PolicyFromProfile(profile string) Policy {
	return Policy{profile: profile}
}

// IsToolAllowed reports whether the named tool is available under the
// current profile.
func (p Policy) IsToolAllowed(name string) bool {
	switch p.profile {
	case "full":
		return true
	case "coding":
		switch name {
		case "bash", "read", "write", "edit", "glob", "grep", "web_fetch":
			return true
		}
		return false
	case "minimal":
		switch name {
		case "read", "glob", "grep":
			return true
		}
		return false
	case "none":
		return false
	default:
		return true
	}
}

// chainMarkers are shell metacharacters that let one allowed command smuggle
// in another. "|" also catches "||".
var chainMarkers = []string{";", "&&", "|", "`", "$(", "\n", "\r", "<<", "<(", ">("}

// IsCommandAllowed checks a shell command against the exec security mode:
//
//   - full:      always allowed
//   - deny:      never allowed
//   - allowlist: the command must match an allowlist pattern and contain no
//     shell chaining. A pattern ending in a space (e.g. "git ") is a prefix
//     match on the whole command; otherwise the pattern matches the binary
//     basename of the first token.
func IsCommandAllowed(command string, allowlist []string, security string) bool {
	switch security {
	case "full":
		return true
	case "deny":
		return false
	case "allowlist":
	default:
		return false
	}

	hasChain := false
	for _, marker := range chainMarkers {
		if strings.Contains(command, marker) {
			hasChain = true
			break
		}
	}

	trimmed := strings.TrimSpace(command)
	firstToken := ""
	if fields := strings.Fields(trimmed); len(fields) > 0 {
		firstToken = fields[0]
	}
	binName := strings.ToLower(filepath.Base(firstToken))

	for _, pattern := range allowlist {
		p := strings.ToLower(pattern)
		if strings.HasSuffix(p, " ") {
			if strings.HasPrefix(strings.ToLower(trimmed), p) && !hasChain {
				return true
			}
		} else if binName == p && !hasChain {
			return true
		}
	}
	return false
}
