// Package sandbox classifies shell commands before execution.
//
// Two independent layers apply: the blocked list matches literal substrings
// of the raw command (fork-bomb literals tokenize innocuously), while every
// other rule works on shell-tokenized basenames. Mode "normal" skips the
// sandbox rules but never the blocked/dangerous policy.
package sandbox

import (
	"os"
	"path/filepath"
	"strings"
)

// Mode is the sandbox level for an agent.
type Mode string

const (
	ModeNormal     Mode = "normal"
	ModeConfined   Mode = "confined"
	ModeRestricted Mode = "restricted"
)

// ParseMode validates a mode string, defaulting to confined.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeNormal, ModeConfined, ModeRestricted:
		return Mode(s), true
	case "":
		return ModeConfined, true
	}
	return ModeConfined, false
}

// Verdict is the outcome of classifying a command.
type Verdict int

const (
	Allowed Verdict = iota
	NeedsConfirmation
	Blocked
)

// Decision carries the verdict plus a human-readable reason for the
// non-allowed cases.
type Decision struct {
	Verdict Verdict
	Reason  string
}

// processCommands are blocked in confined and restricted modes: a worker
// must not manage host processes from inside its workspace.
var processCommands = map[string]bool{
	"kill": true, "killall": true, "pkill": true,
	"pgrep": true, "renice": true, "nice": true,
}

// networkCommands are blocked in restricted mode only.
var networkCommands = map[string]bool{
	"curl": true, "wget": true, "nc": true, "ncat": true, "netcat": true,
	"ssh": true, "scp": true, "sftp": true, "ftp": true, "telnet": true,
	"ping": true, "traceroute": true, "nslookup": true, "dig": true, "host": true,
}

// protectedPathPrefixes are forbidden as substrings in confined/restricted
// modes. Home-relative entries are expanded at policy construction.
var protectedPathPrefixes = []string{
	"/etc/", "/sys/", "/proc/", "/boot/", "/sbin/",
	"~/.ssh/", "~/.config/", "~/.gnupg/",
}

// Policy evaluates commands for one agent.
type Policy struct {
	mode           Mode
	dangerous      map[string]bool
	blocked        []string
	protectedPaths []string
}

// NewPolicy builds a policy from the agent's mode and the shell config's
// dangerous-basename and blocked-substring lists.
func NewPolicy(mode Mode, dangerous, blocked []string) *Policy {
	dangerSet := make(map[string]bool, len(dangerous))
	for _, d := range dangerous {
		if d = strings.TrimSpace(d); d != "" {
			dangerSet[d] = true
		}
	}

	home, _ := os.UserHomeDir()
	paths := make([]string, 0, len(protectedPathPrefixes)*2)
	for _, p := range protectedPathPrefixes {
		paths = append(paths, p)
		if strings.HasPrefix(p, "~/") && home != "" {
			paths = append(paths, filepath.Join(home, p[2:])+"/")
		}
	}

	return &Policy{
		mode:           mode,
		dangerous:      dangerSet,
		blocked:        blocked,
		protectedPaths: paths,
	}
}

// Mode returns the policy's sandbox mode.
func (p *Policy) Mode() Mode { return p.mode }

// Check classifies a command. Rule order matters: blocked substrings first,
// then dangerous basenames, then mode-specific sandbox rules.
func (p *Policy) Check(command string) Decision {
	for _, sub := range p.blocked {
		if sub != "" && strings.Contains(command, sub) {
			return Decision{Blocked, "command contains blocked pattern: " + sub}
		}
	}

	basenames := tokenBasenames(command)
	for _, b := range basenames {
		if p.dangerous[b] {
			return Decision{NeedsConfirmation, "dangerous command: " + b}
		}
	}

	if p.mode == ModeConfined || p.mode == ModeRestricted {
		if strings.Contains(command, "..") {
			return Decision{Blocked, "path traversal is not permitted in sandbox mode"}
		}
		for _, prefix := range p.protectedPaths {
			if strings.Contains(command, prefix) {
				return Decision{Blocked, "protected path access: " + prefix}
			}
		}
		for _, b := range basenames {
			if processCommands[b] {
				return Decision{Blocked, "process management is not permitted in sandbox mode: " + b}
			}
			if p.mode == ModeRestricted && networkCommands[b] {
				return Decision{Blocked, "network access is not permitted in restricted mode: " + b}
			}
		}
	}

	return Decision{Allowed, ""}
}

// tokenBasenames splits a command shell-style and reduces each token to
// its path basename. Unbalanced quoting falls back to whitespace splitting.
func tokenBasenames(command string) []string {
	tokens, err := splitShell(command)
	if err != nil {
		tokens = strings.Fields(command)
	}
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		out = append(out, filepath.Base(tok))
	}
	return out
}
