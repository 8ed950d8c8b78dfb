package checkrun

import "github.com/simplesurance/mergeguard/internal/stringutils"

// MaxOutputTextLen is the longest check run output text that GitHub accepts.
const MaxOutputTextLen = 65534

// OutputText formats the output of a command for a check run.
// The result is truncated to MaxOutputTextLen characters.
func OutputText(stderr, stdout string) string {
	return stringutils.Truncate("```\n"+stderr+"\n\n"+stdout+"\n```", MaxOutputTextLen)
}

// CommandOutput returns the check run output for a finished command.
func CommandOutput(title, stdout, stderr string) *Output {
	return &Output{
		Title:   title,
		Summary: "",
		Text:    OutputText(stderr, stdout),
	}
}
