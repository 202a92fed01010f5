// Package errors provides standardized error handling for focusstream components.
//
// The package implements a three-class error classification system:
// Transient (temporary, retryable), Invalid (bad input, non-retryable),
// and Fatal (unrecoverable, stop processing).
//
// Classification drives the pipeline's degradation policy: persistence and
// transport failures classify as transient and cause the drained batch to be
// requeued for the next flush, validation failures classify as invalid and
// drop the single offending event, and configuration errors classify as fatal
// and fail startup.
//
// Use the Wrap helpers to attach component/method/action context:
//
//	if err := store.Store(ctx, batch); err != nil {
//	    return errors.WrapTransient(err, "Buffer", "Flush", "persist batch")
//	}
//
// which produces "Buffer.Flush: persist batch failed: <cause>" and remains
// compatible with errors.Is/errors.As on the underlying cause.
package errors
