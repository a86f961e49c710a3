package chainlinks

import (
	"net/http"
	"strconv"

	"golang.org/x/xerrors"
)

var (
	ErrNotFound         = xerrors.New("URL not found")
	ErrConfiguration    = xerrors.New("missing configuration")
	ErrMethodNotAllowed = xerrors.New("method not allowed")
	ErrUpstreamTimeout  = xerrors.New("ledger call timed out")
	ErrUpstream         = xerrors.New("ledger call failed")
	ErrUnknown          = xerrors.New("unknown error")
)

// Kind classifies why a short code could not be resolved.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConfiguration
	KindMethodNotAllowed
	KindUpstreamTimeout
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindConfiguration:
		return "ConfigurationError"
	case KindMethodNotAllowed:
		return "MethodNotAllowed"
	case KindUpstreamTimeout:
		return "UpstreamTimeout"
	case KindUpstream:
		return "UpstreamError"
	default:
		return "UnknownError"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindConfiguration:
		return ErrConfiguration
	case KindMethodNotAllowed:
		return ErrMethodNotAllowed
	case KindUpstreamTimeout:
		return ErrUpstreamTimeout
	case KindUpstream:
		return ErrUpstream
	default:
		return ErrUnknown
	}
}

// Status is the HTTP status the JSON endpoint answers with for this kind.
func (k Kind) Status() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the error text shown to JSON consumers.
func (k Kind) PublicMessage() string {
	switch k {
	case KindNotFound:
		return "URL not found"
	case KindMethodNotAllowed:
		return "Method not allowed"
	default:
		return "Server error"
	}
}

// PageMessage is the error text shown on the gateway's error page.
func (k Kind) PageMessage() string {
	switch k {
	case KindNotFound:
		return "URL not found"
	case KindConfiguration:
		return "Missing environment configuration"
	default:
		return "Error retrieving URL"
	}
}

// ResolveError is returned by Resolver.Resolve for every failed lookup.
type ResolveError struct {
	Kind        Kind
	ShortCode   string
	Diagnostics Diagnostics
	Err         error
}

func (e *ResolveError) Error() string {
	msg := "resolving " + strconv.Quote(e.ShortCode) + ": " + e.Kind.sentinel().Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResolveError) Unwrap() error {
	if e.Err == nil {
		return e.Kind.sentinel()
	}
	return e.Err
}

// Is makes xerrors.Is(err, ErrNotFound) and friends work on a *ResolveError
// regardless of what caused it.
func (e *ResolveError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// KindOf returns the Kind of a resolution error, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var re *ResolveError
	if xerrors.As(err, &re) {
		return re.Kind
	}
	switch {
	case xerrors.Is(err, ErrNotFound):
		return KindNotFound
	case xerrors.Is(err, ErrConfiguration):
		return KindConfiguration
	case xerrors.Is(err, ErrMethodNotAllowed):
		return KindMethodNotAllowed
	case xerrors.Is(err, ErrUpstreamTimeout):
		return KindUpstreamTimeout
	case xerrors.Is(err, ErrUpstream):
		return KindUpstream
	}
	return KindUnknown
}
