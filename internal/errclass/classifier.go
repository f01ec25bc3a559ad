package errclass

import (
	"context"
	"errors"
	"net"
	"net/url"

	"github.com/Jem1004/pklapps-v2-sub000/internal/queue"
	"github.com/Jem1004/pklapps-v2-sub000/internal/remote"

	"github.com/rs/zerolog"
)

// Kind is the normalized failure category.
type Kind string

const (
	KindNetwork     Kind = "NETWORK"
	KindServer      Kind = "SERVER"
	KindValidation  Kind = "VALIDATION"
	KindAuth        Kind = "AUTH"
	KindStorageFull Kind = "STORAGE_FULL"
	KindUnknown     Kind = "UNKNOWN"
)

// Classification is the retry decision derived from a raw failure.
// AlreadyRecorded marks the idempotent duplicate rejection from the
// record service: terminal, but not an error from the user's view.
type Classification struct {
	Kind            Kind
	Retryable       bool
	RetryOnce       bool
	AlreadyRecorded bool
	UserMessage     string
}

// Classify maps a raw error onto a Classification. It is a pure
// function of the error's observable properties (status code, absence
// of response, wrapped sentinel); identical failures always classify
// identically.
func Classify(err error) Classification {
	if err == nil {
		return Classification{}
	}

	if errors.Is(err, queue.ErrStorageFull) {
		return Classification{
			Kind:        KindStorageFull,
			UserMessage: "Local storage is full. Free up space and try again.",
		}
	}

	if errors.Is(err, queue.ErrQueueFull) {
		return Classification{
			Kind:        KindStorageFull,
			UserMessage: "The offline queue is full. Sync pending submissions first.",
		}
	}

	var apiErr *remote.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return network()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return network()
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return network()
	}

	return Classification{
		Kind:        KindUnknown,
		Retryable:   true,
		RetryOnce:   true,
		UserMessage: "Something went wrong. One more attempt will be made automatically.",
	}
}

func classifyStatus(apiErr *remote.APIError) Classification {
	switch {
	case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
		return Classification{
			Kind:        KindAuth,
			UserMessage: "Your authorization code was rejected. Check it and submit again.",
		}
	case apiErr.StatusCode == 409:
		return Classification{
			Kind:            KindValidation,
			AlreadyRecorded: true,
			UserMessage:     "Already recorded for today.",
		}
	case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		msg := apiErr.Message
		if msg == "" {
			msg = "The submission was rejected. Review it before trying again."
		}
		return Classification{Kind: KindValidation, UserMessage: msg}
	case apiErr.StatusCode >= 500:
		return Classification{
			Kind:        KindServer,
			Retryable:   true,
			UserMessage: "The record service is having trouble. Will retry automatically.",
		}
	default:
		return Classification{
			Kind:        KindUnknown,
			Retryable:   true,
			RetryOnce:   true,
			UserMessage: "Something went wrong. One more attempt will be made automatically.",
		}
	}
}

func network() Classification {
	return Classification{
		Kind:        KindNetwork,
		Retryable:   true,
		UserMessage: "No connection to the record service. Will retry automatically.",
	}
}

// Classifier wraps Classify with a diagnostics log record per
// classification. The decision itself never depends on the logger.
type Classifier struct {
	logger *zerolog.Logger
}

func NewClassifier(logger *zerolog.Logger) *Classifier {
	return &Classifier{logger: logger}
}

// Classify returns the classification and emits a structured
// {timestamp, kind, context} diagnostic record.
func (c *Classifier) Classify(err error, opContext string) Classification {
	cls := Classify(err)
	if c.logger != nil && err != nil {
		c.logger.Warn().
			Timestamp().
			Str("kind", string(cls.Kind)).
			Bool("retryable", cls.Retryable).
			Str("context", opContext).
			Err(err).
			Msg("failure classified")
	}
	return cls
}
