package process

import (
	"regexp"
	"strings"

	"github.com/botasky11/totml/pkg/domain"
)

const tracebackHeader = "Traceback (most recent call last):"

// exceptionName matches a possibly dotted Python exception class name.
var exceptionName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// parseTraceback extracts the last Python traceback from terminal output.
// It returns nil when the output holds none.
func parseTraceback(out string) *domain.ExceptionInfo {
	i := strings.LastIndex(out, tracebackHeader)
	if i < 0 {
		return nil
	}

	var (
		stack []string
		last  string
	)
	for _, line := range strings.Split(out[i+len(tracebackHeader):], "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "File \"") {
			stack = append(stack, trimmed)
			continue
		}
		// Frame source lines are indented, the exception line is not.
		if !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
			last = trimmed
			break
		}
	}

	info := &domain.ExceptionInfo{Type: "Exception", Stack: stack}
	if last == "" {
		return info
	}
	typ, msg, found := strings.Cut(last, ":")
	if !found {
		// Raised without arguments, e.g. KeyboardInterrupt.
		if exceptionName.MatchString(last) {
			info.Type = last
		} else {
			info.Message = last
		}
		return info
	}
	if !exceptionName.MatchString(typ) {
		info.Message = last
		return info
	}
	info.Type = typ
	info.Message = strings.TrimSpace(msg)
	return info
}
