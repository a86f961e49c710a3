package chainlinks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/xerrors"
)

// DefaultLookupTimeout bounds a single ledger read.
const DefaultLookupTimeout = 30 * time.Second

// Target describes where lookups are sent. It only feeds diagnostics.
type Target struct {
	RPCURL          string
	ContractAddress string
}

// Diagnostics is operator-facing context attached to failed resolutions.
type Diagnostics struct {
	ShortCode          string `json:"shortCode"`
	RPCConfigured      bool   `json:"rpcConfigured"`
	ContractConfigured bool   `json:"contractConfigured"`
	RPCURLStart        string `json:"rpcUrlStart,omitempty"`
	LedgerInitialized  bool   `json:"ledgerInitialized"`
	CallCompleted      bool   `json:"callCompleted"`
	URLFound           bool   `json:"urlFound"`
	Kind               string `json:"kind,omitempty"`
	Message            string `json:"message,omitempty"`
	ErrorType          string `json:"type,omitempty"`
	Timestamp          string `json:"timestamp"`
	Incident           string `json:"incident,omitempty"`
}

// Resolver translates short codes into destination URLs. It holds no mutable
// state and is safe for concurrent use; every call queries the ledger.
type Resolver struct {
	ledger  Ledger
	target  Target
	timeout time.Duration
	now     func() time.Time
}

// NewResolver returns a Resolver reading from l. A nil l makes every
// resolution fail with a configuration error, which is how a server started
// without RPC settings reports its state instead of refusing to start.
func NewResolver(l Ledger, target Target, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	return &Resolver{
		ledger:  l,
		target:  target,
		timeout: timeout,
		now:     time.Now,
	}
}

// Resolve returns the normalized URL stored for shortCode. Any error is a
// *ResolveError.
func (r *Resolver) Resolve(ctx context.Context, shortCode string) (string, error) {
	diag := r.diagnostics(shortCode)

	if r.ledger == nil {
		return "", r.fail(KindConfiguration, diag, nil)
	}
	diag.LedgerInitialized = true

	longURL, err := r.lookup(ctx, shortCode)
	if err != nil {
		kind := KindUpstream
		switch {
		case xerrors.Is(err, ErrUpstreamTimeout):
			kind = KindUpstreamTimeout
		case xerrors.Is(err, ErrUnknown):
			kind = KindUnknown
		}
		return "", r.fail(kind, diag, err)
	}
	diag.CallCompleted = true

	if longURL == "" {
		return "", r.fail(KindNotFound, diag, nil)
	}

	return Normalize(longURL), nil
}

type lookupResult struct {
	longURL string
	err     error
}

// lookup races the ledger call against the configured timeout. The call keeps
// running in the background after a timeout; its result is dropped.
func (r *Resolver) lookup(ctx context.Context, shortCode string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan lookupResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- lookupResult{err: xerrors.Errorf("panic in ledger call: %v: %w", p, ErrUnknown)}
			}
		}()
		longURL, err := r.ledger.GetURL(ctx, shortCode)
		done <- lookupResult{longURL: longURL, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if xerrors.Is(res.err, context.DeadlineExceeded) {
				return "", xerrors.Errorf("no answer within %s (%v): %w", r.timeout, res.err, ErrUpstreamTimeout)
			}
			return "", res.err
		}
		return res.longURL, nil
	case <-ctx.Done():
		if xerrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", xerrors.Errorf("no answer within %s: %w", r.timeout, ErrUpstreamTimeout)
		}
		return "", xerrors.Errorf("lookup abandoned: %w", ctx.Err())
	}
}

func (r *Resolver) diagnostics(shortCode string) Diagnostics {
	d := Diagnostics{
		ShortCode:          shortCode,
		RPCConfigured:      r.target.RPCURL != "",
		ContractConfigured: r.target.ContractAddress != "",
		Timestamp:          r.now().UTC().Format(time.RFC3339),
	}
	if d.RPCConfigured {
		d.RPCURLStart = truncate(r.target.RPCURL, 10) + "..."
	}
	return d
}

func (r *Resolver) fail(kind Kind, diag Diagnostics, cause error) *ResolveError {
	diag.Kind = kind.String()
	diag.URLFound = false
	diag.Incident = uuid.NewString()
	if cause != nil {
		diag.Message = cause.Error()
		diag.ErrorType = fmt.Sprintf("%T", innermost(cause))
	}
	return &ResolveError{
		Kind:        kind,
		ShortCode:   diag.ShortCode,
		Diagnostics: diag,
		Err:         cause,
	}
}

// Normalize prefixes longURL with https:// unless it already carries an
// http or https scheme.
func Normalize(longURL string) string {
	lower := strings.ToLower(longURL)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return longURL
	}
	return "https://" + longURL
}

// innermost returns the last error in err's wrap chain.
func innermost(err error) error {
	for {
		next := xerrors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
