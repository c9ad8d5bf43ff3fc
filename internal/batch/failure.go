package batch

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/redcentre/carbonsvc/internal/executor"
)

// describeFailure returns the failure type name and the cause chain of err,
// outermost first. Errors implementing executor.Typed name their own type.
func describeFailure(err error) (string, []string) {
	var typed executor.Typed
	typeName := ""
	if errors.As(err, &typed) {
		typeName = typed.FailureType()
	}
	if typeName == "" {
		typeName = goTypeName(err)
	}

	msgs := causeMessages(err, nil)
	if len(msgs) == 0 {
		msgs = []string{err.Error()}
	}
	return typeName, msgs
}

// causeMessages appends the own message of err and then those of its causes,
// depth first. Errors joining several causes contribute each of them in order.
func causeMessages(err error, msgs []string) []string {
	var causes []error
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		if c := u.Unwrap(); c != nil {
			causes = []error{c}
		}
	case interface{ Unwrap() []error }:
		for _, c := range u.Unwrap() {
			if c != nil {
				causes = append(causes, c)
			}
		}
	}

	msg := err.Error()
	switch len(causes) {
	case 0:
	case 1:
		msg = trimCause(msg, causes[0].Error())
	default:
		for _, c := range causes {
			msg = strings.Replace(msg, c.Error(), "", 1)
		}
		msg = strings.Trim(msg, " :;,\n")
	}
	if msg != "" {
		msgs = append(msgs, msg)
	}
	for _, c := range causes {
		msgs = causeMessages(c, msgs)
	}
	return msgs
}

// trimCause strips a wrapped cause from a wrapper's message when it appears
// as a ": "-separated suffix or prefix.
func trimCause(msg, cause string) string {
	switch {
	case msg == cause:
		return ""
	case strings.HasSuffix(msg, ": "+cause):
		return strings.TrimSuffix(msg, ": "+cause)
	case strings.HasPrefix(msg, cause+": "):
		return strings.TrimPrefix(msg, cause+": ")
	}
	return msg
}

func goTypeName(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return t.String()
	}
	return t.Name()
}

// panicError carries a recovered panic value as an item failure.
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

func (e *panicError) FailureType() string {
	return "Panic"
}
