package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a scrape failure by the scope it affects.
type Kind string

const (
	// KindSession means the browser could not be started; the job aborts.
	KindSession Kind = "session"
	// KindPageLoad means a URL never became ready within the retry budget.
	KindPageLoad Kind = "page_load"
	// KindElement means an expected element was missing or an interaction failed.
	KindElement Kind = "element"
	// KindParse means scraped text could not be converted.
	KindParse Kind = "parse"
	// KindPersistence means reading or writing a store failed.
	KindPersistence Kind = "persistence"
	// KindConfiguration means the configuration is unusable.
	KindConfiguration Kind = "configuration"
)

// ScrapeError carries the failure kind and the item it happened on.
type ScrapeError struct {
	Kind    Kind
	Target  string
	Message string
	Err     error
}

// Error implements the error interface
func (e *ScrapeError) Error() string {
	target := ""
	if e.Target != "" {
		target = " " + e.Target
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s]%s: %s: %v", e.Kind, target, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s]%s: %s", e.Kind, target, e.Message)
}

// Unwrap returns the underlying error
func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether the failure must abort the whole job.
func (e *ScrapeError) IsFatal() bool {
	return e.Kind == KindSession || e.Kind == KindConfiguration
}

// New creates a new ScrapeError
func New(kind Kind, target, message string, err error) *ScrapeError {
	return &ScrapeError{Kind: kind, Target: target, Message: message, Err: err}
}

func NewSession(message string, err error) *ScrapeError {
	return New(KindSession, "", message, err)
}

func NewPageLoad(url, message string, err error) *ScrapeError {
	return New(KindPageLoad, url, message, err)
}

func NewElement(target, message string, err error) *ScrapeError {
	return New(KindElement, target, message, err)
}

func NewParse(target, message string, err error) *ScrapeError {
	return New(KindParse, target, message, err)
}

func NewPersistence(target, message string, err error) *ScrapeError {
	return New(KindPersistence, target, message, err)
}

func NewConfiguration(message string, err error) *ScrapeError {
	return New(KindConfiguration, "", message, err)
}

// KindOf returns the Kind of the first ScrapeError in err's chain, or "".
func KindOf(err error) Kind {
	var se *ScrapeError
	if stderrors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// IsFatal reports whether err (or anything it wraps) is a fatal ScrapeError.
func IsFatal(err error) bool {
	var se *ScrapeError
	return stderrors.As(err, &se) && se.IsFatal()
}
