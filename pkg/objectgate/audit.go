package objectgate

import (
	"context"
	"log/slog"
)

// NoopAuditSink is a no-operation implementation of AuditSink
type NoopAuditSink struct{}

// NewNoopAuditSink creates a new no-operation audit sink
func NewNoopAuditSink() AuditSink {
	return &NoopAuditSink{}
}

// OwnershipTransferred does nothing and returns nil
func (n *NoopAuditSink) OwnershipTransferred(ctx context.Context, event OwnershipTransfer) error {
	return nil
}

// LogAuditSink writes audit events as structured log records
type LogAuditSink struct {
	logger *slog.Logger
}

// NewLogAuditSink creates an audit sink writing to logger
func NewLogAuditSink(logger *slog.Logger) AuditSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogAuditSink{logger: logger.With("component", "audit")}
}

func (l *LogAuditSink) OwnershipTransferred(ctx context.Context, event OwnershipTransfer) error {
	l.logger.InfoContext(ctx, "Object ownership transferred",
		"object_path", event.ObjectPath,
		"previous_owner", event.PreviousOwner,
		"new_owner", event.NewOwner,
		"requested_by", event.RequestedBy,
		"at", event.At,
	)
	return nil
}
