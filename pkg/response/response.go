package response

import (
	"errors"
	"strings"

	"bank-node/pkg/apperror"
)

// Terminator ends every request and response line.
const Terminator = "\n"

// OK builds a success line: the command code followed by its payload fields.
func OK(code string, fields ...string) string {
	if len(fields) == 0 {
		return code
	}
	return code + " " + strings.Join(fields, " ")
}

// Error renders err as a response line. It checks if err is an *apperror.AppError
// and uses its message, otherwise the generic store failure line is returned so
// no internal detail reaches the client.
func Error(err error) string {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return apperror.MsgStoreFailure
}

// IsError reports whether a rendered line is an error line.
func IsError(line string) bool {
	return strings.HasPrefix(line, "Error")
}

// Frame terminates a response line for the wire, flattening any embedded newlines
// so one request always yields exactly one line.
func Frame(line string) []byte {
	line = strings.NewReplacer("\r", " ", "\n", " ").Replace(line)
	return []byte(line + Terminator)
}
