package checks

import (
	"bytes"
	"fmt"
	"net/url"
	"text/template"

	"github.com/simplesurance/mergeguard/internal/cfg"
	"github.com/simplesurance/mergeguard/internal/cmdrunner"
	"github.com/simplesurance/mergeguard/internal/pullrequest"
)

// Data is available in command templates, e.g.:
//
//	tox -e py3 --installpkg {{ .CloneURL }}@{{ .HeadSHA }}
type Data struct {
	Owner          string
	Repository     string
	Number         int
	Title          string
	Author         string
	HeadSHA        string
	HeadBranch     string
	BaseBranch     string
	CloneURL       string
	HTMLURL        string
	MergeCommitSHA string

	// Tag is the pushed git tag.
	Tag string
	// Target is the branch a cherry-pick is done to.
	Target string
	// CherryPickBranch is the name of the branch that contains the
	// cherry-picked commit.
	CherryPickBranch string
	// ImageTag is the tag of the container image, pr-<number> for pull
	// request builds.
	ImageTag string
	// Push is true when a built container image should be pushed to the
	// registry.
	Push bool
}

func newData(pr *pullrequest.PullRequest) *Data {
	return &Data{
		Owner:          pr.Owner,
		Repository:     pr.Name,
		Number:         pr.Number,
		Title:          pr.Title,
		Author:         pr.Author,
		HeadSHA:        pr.HeadSHA,
		HeadBranch:     pr.HeadBranch,
		BaseBranch:     pr.BaseBranch,
		CloneURL:       pr.CloneURL,
		HTMLURL:        pr.HTMLURL,
		MergeCommitSHA: pr.MergeCommitSHA,
		ImageTag:       fmt.Sprintf("pr-%d", pr.Number),
	}
}

var templateFuncs = template.FuncMap{
	"queryescape": url.QueryEscape,
}

func render(name, text string, data *Data) (string, error) {
	templ, err := template.New(name).Funcs(templateFuncs).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", err
	}

	var out bytes.Buffer

	if err := templ.Execute(&out, data); err != nil {
		return "", err
	}

	return out.String(), nil
}

func renderCommand(def *cfg.Command, data *Data) (*cmdrunner.Command, error) {
	cmd, err := render("command", def.Command, data)
	if err != nil {
		return nil, fmt.Errorf("rendering command failed: %w", err)
	}

	dir, err := render("dir", def.Dir, data)
	if err != nil {
		return nil, fmt.Errorf("rendering dir failed: %w", err)
	}

	env := make([]string, 0, len(def.Env))
	for _, e := range def.Env {
		rendered, err := render("env", e, data)
		if err != nil {
			return nil, fmt.Errorf("rendering env %q failed: %w", e, err)
		}

		env = append(env, rendered)
	}

	return &cmdrunner.Command{
		Cmd:      cmd,
		Env:      env,
		Dir:      dir,
		Timeout:  def.Timeout,
		LockFile: def.LockFile,
	}, nil
}
