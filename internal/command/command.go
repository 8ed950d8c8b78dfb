// Package command parses the commands that users write in pull request
// comments.
package command

import (
	"strings"
)

// Names of the supported commands that are not label commands.
const (
	Retest                = "retest"
	CherryPick            = "cherry-pick"
	AssignReviewers       = "assign-reviewers"
	CheckCanMerge         = "check-can-merge"
	BuildAndPushContainer = "build-and-push-container"
)

const cancelArg = "cancel"

// Command is a command from a comment line like "/hold cancel" or
// "!retest tox".
type Command struct {
	Name string
	Args []string
	// Cancel is true if the only argument is "cancel".
	Cancel bool
}

// RawArgs returns the arguments separated by spaces.
func (c *Command) RawArgs() string {
	return strings.Join(c.Args, " ")
}

func (c *Command) String() string {
	if len(c.Args) == 0 {
		return "/" + c.Name
	}

	return "/" + c.Name + " " + c.RawArgs()
}

// Parse returns the commands in a comment body. Every line that starts
// with "/" or "!" is a command.
func Parse(body string) []*Command {
	var result []*Command

	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		line = strings.TrimRight(line, "\r")

		if !strings.HasPrefix(line, "/") && !strings.HasPrefix(line, "!") {
			continue
		}

		fields := strings.Fields(line[1:])
		if len(fields) == 0 {
			continue
		}

		cmd := Command{
			Name: fields[0],
			Args: fields[1:],
		}

		cmd.Cancel = len(cmd.Args) == 1 && cmd.Args[0] == cancelArg

		result = append(result, &cmd)
	}

	return result
}
