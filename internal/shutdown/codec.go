package shutdown

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/giantswarm/h2env/internal/sentinel"
)

// MaxLineLength bounds a single request or response line, newline included.
const MaxLineLength = 4096

// ErrMalformed is returned for lines that do not follow the protocol.
const ErrMalformed = sentinel.Error("malformed control line")

// ErrLineTooLong is returned for lines longer than MaxLineLength.
const ErrLineTooLong = sentinel.Error("control line too long")

// Op identifies a request.
type Op string

// Supported operations.
const (
	OpPing     Op = "PING"
	OpOpen     Op = "OPEN"
	OpShutdown Op = "SHUTDOWN"
)

// Request is one control request.
type Request struct {
	Op Op
	// Database is the OPEN target.
	Database string
	// Credential, Force and AllInstances parameterize SHUTDOWN.
	Credential   string
	Force        bool
	AllInstances bool
}

// Encode renders r as a protocol line without the trailing newline.
func (r Request) Encode() string {
	switch r.Op {
	case OpOpen:
		return string(OpOpen) + " " + strconv.Quote(r.Database)
	case OpShutdown:
		return fmt.Sprintf("%s %s %s %s", OpShutdown, strconv.Quote(r.Credential), flag(r.Force), flag(r.AllInstances))
	default:
		return string(r.Op)
	}
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// ParseRequest decodes a request line. A trailing newline is ignored.
func ParseRequest(line string) (Request, error) {
	line = strings.TrimRight(line, "\r\n")
	opStr, rest, _ := strings.Cut(line, " ")
	switch op := Op(opStr); op {
	case OpPing:
		if rest != "" {
			return Request{}, fmt.Errorf("%s takes no arguments: %w", op, ErrMalformed)
		}
		return Request{Op: op}, nil
	case OpOpen:
		db, rest, err := unquote(rest)
		if err != nil {
			return Request{}, fmt.Errorf("%s database: %w", op, err)
		}
		if rest != "" {
			return Request{}, fmt.Errorf("%s: trailing data %q: %w", op, rest, ErrMalformed)
		}
		return Request{Op: op, Database: db}, nil
	case OpShutdown:
		cred, rest, err := unquote(rest)
		if err != nil {
			return Request{}, fmt.Errorf("%s credential: %w", op, err)
		}
		fields := strings.Fields(rest)
		if len(fields) != 2 {
			return Request{}, fmt.Errorf("%s: want force and all-instances flags, got %q: %w", op, rest, ErrMalformed)
		}
		force, err := parseFlag(fields[0])
		if err != nil {
			return Request{}, fmt.Errorf("%s force: %w", op, err)
		}
		all, err := parseFlag(fields[1])
		if err != nil {
			return Request{}, fmt.Errorf("%s all instances: %w", op, err)
		}
		return Request{Op: op, Credential: cred, Force: force, AllInstances: all}, nil
	default:
		return Request{}, fmt.Errorf("unknown operation %q: %w", opStr, ErrMalformed)
	}
}

// unquote reads one Go-quoted string from the start of s and returns it with
// the remainder, leading space removed.
func unquote(s string) (string, string, error) {
	quoted, err := strconv.QuotedPrefix(s)
	if err != nil {
		return "", "", fmt.Errorf("expected quoted string in %q: %w", s, ErrMalformed)
	}
	v, err := strconv.Unquote(quoted)
	if err != nil {
		return "", "", fmt.Errorf("unquote %q: %w", quoted, ErrMalformed)
	}
	return v, strings.TrimPrefix(s[len(quoted):], " "), nil
}

func parseFlag(s string) (bool, error) {
	switch s {
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, fmt.Errorf("flag must be 0 or 1, got %q: %w", s, ErrMalformed)
	}
}

// Response is the answer to one Request.
type Response struct {
	OK bool
	// Detail is the OK payload or the ERR message.
	Detail string
}

// OK returns a successful response with an optional detail.
func OK(detail string) Response { return Response{OK: true, Detail: detail} }

// Errorf returns a failed response.
func Errorf(format string, args ...any) Response {
	return Response{Detail: fmt.Sprintf(format, args...)}
}

// Encode renders r as a protocol line without the trailing newline.
func (r Response) Encode() string {
	if r.OK {
		if r.Detail == "" {
			return "OK"
		}
		return "OK " + r.Detail
	}
	return "ERR " + strconv.Quote(r.Detail)
}

// ParseResponse decodes a response line. A trailing newline is ignored.
func ParseResponse(line string) (Response, error) {
	line = strings.TrimRight(line, "\r\n")
	status, rest, _ := strings.Cut(line, " ")
	switch status {
	case "OK":
		return OK(rest), nil
	case "ERR":
		msg, trailing, err := unquote(rest)
		if err != nil {
			return Response{}, fmt.Errorf("ERR message: %w", err)
		}
		if trailing != "" {
			return Response{}, fmt.Errorf("ERR: trailing data %q: %w", trailing, ErrMalformed)
		}
		return Response{Detail: msg}, nil
	default:
		return Response{}, fmt.Errorf("unknown response status %q: %w", status, ErrMalformed)
	}
}

// NewScanner returns a line scanner limited to MaxLineLength.
func NewScanner(r io.Reader) *bufio.Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 256), MaxLineLength)
	return s
}

// WriteLine writes line followed by a newline.
func WriteLine(w io.Writer, line string) error {
	_, err := io.WriteString(w, line+"\n")
	return err
}
