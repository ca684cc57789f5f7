package process

import (
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Command renders the final command line: ${NAME} placeholders are
// substituted from the environment map, array elements are escaped
// individually and joined with spaces, and substituted values in flat
// strings are escaped before insertion. A raw unescaped interpolation can
// therefore never reach a shell back-end.
func (p *Proc) Command() (string, error) {
	if p.isArray {
		escaped := make([]string, len(p.args))
		for i, arg := range p.args {
			escaped[i] = Escape(substitute(arg, p.env, false))
		}
		return strings.Join(escaped, " "), nil
	}
	if p.raw != "" {
		return substitute(p.raw, p.env, true), nil
	}
	return "", nil
}

// substitute replaces ${NAME} placeholders with values from env. Unknown
// placeholders resolve to the empty string. When escape is set, substituted
// values are shell-escaped in place; the surrounding command text is the
// caller's own and stays untouched.
func substitute(s string, env map[string]string, escape bool) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		value := env[name]
		if escape {
			return Escape(value)
		}
		return value
	})
}

// substituteAll applies placeholder substitution to every element of an
// argument array. Array elements are passed to the OS directly, so no shell
// escaping is applied here.
func substituteAll(args []string, env map[string]string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = substitute(arg, env, false)
	}
	return out
}

// Escape quotes a single argument for POSIX shells. Values that consist
// solely of safe characters pass through unchanged; everything else is
// wrapped in single quotes with embedded quotes rewritten as '\''.
func Escape(arg string) string {
	if arg == "" {
		return "''"
	}
	if safeArgPattern.MatchString(arg) {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}

var safeArgPattern = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)
