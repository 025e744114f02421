// Package errors classifies errors into low-cardinality metric tags.
package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strings"

	apperrors "github.com/target/renewal-risk-api/internal/errors"
)

// Classify returns a normalized error name suitable for tagging metrics and logs.
//
// Context errors and application errors get stable names of their own. Anything else is
// named after the innermost concrete type, e.g. "pgconn_pgerror" or "net_operror".
func Classify(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case goerrors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	case goerrors.Is(err, context.Canceled):
		return "canceled"
	}
	if code := apperrors.GetCode(err); code != "" {
		return "app_" + string(code)
	}

	t := reflect.TypeOf(innermost(err))
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}
	name := strings.ToLower(strings.ReplaceAll(t.String(), ".", "_"))
	if name == "" {
		return "unknown"
	}
	return name
}

// innermost follows single-error wrapping chains. Joined errors stop the walk at the join.
func innermost(err error) error {
	for {
		next := goerrors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
