// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package feed

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// Rule is a compiled Starlark keep rule. The source must define a function
// keep(item) that returns a bool; item has title, link, summary, source and
// published fields.
//
//	def keep(item):
//	    return "sponsored" not in item.title.lower()
type Rule struct {
	fn *starlark.Function
}

var errNoKeepFunc = errors.New("rule must define a keep(item) function")

// CompileRule compiles a keep rule. It returns nil and no error for a blank
// source.
func CompileRule(src string) (*Rule, error) {
	if strings.TrimSpace(src) == "" {
		return nil, nil
	}
	globals, err := starlark.ExecFileOptions(
		&syntax.FileOptions{},
		&starlark.Thread{
			Name:  "rule",
			Print: func(_ *starlark.Thread, msg string) { slog.Info(msg, "source", "rule") },
		},
		"rule.star",
		src,
		nil,
	)
	if err != nil {
		return nil, err
	}
	fn, ok := globals["keep"].(*starlark.Function)
	if !ok {
		return nil, errNoKeepFunc
	}
	return &Rule{fn: fn}, nil
}

// Keep evaluates the rule for it.
func (r *Rule) Keep(it Item) (bool, error) {
	val, err := starlark.Call(
		&starlark.Thread{Name: "keep"},
		r.fn,
		starlark.Tuple{starlarkstruct.FromStringDict(
			starlarkstruct.Default,
			starlark.StringDict{
				"title":     starlark.String(it.Title),
				"link":      starlark.String(it.Link),
				"summary":   starlark.String(it.Summary),
				"source":    starlark.String(it.Source),
				"published": starlark.String(it.RawPublished),
			},
		)},
		nil,
	)
	if err != nil {
		return false, err
	}
	ret, ok := val.(starlark.Bool)
	if !ok {
		return false, fmt.Errorf("rule returned %s, want bool", val.Type())
	}
	return bool(ret), nil
}
