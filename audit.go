package blogauth

import (
	"io"

	"github.com/MrEthical07/blogauth/internal/audit"
	"go.uber.org/zap"
)

// AuditEvent is one structured audit record. Events complement, and never
// replace, the attempt log.
type AuditEvent = audit.Event

// AuditSink receives events from the dispatcher goroutine.
type AuditSink = audit.Sink

// NoOpSink discards every event.
type NoOpSink = audit.NoOpSink

// ChannelSink forwards events to a buffered channel.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = audit.JSONWriterSink

// ZapSink logs each event through a zap logger named "audit".
type ZapSink = audit.ZapSink

func NewChannelSink(buffer int) *ChannelSink { return audit.NewChannelSink(buffer) }

func NewJSONWriterSink(w io.Writer) *JSONWriterSink { return audit.NewJSONWriterSink(w) }

func NewZapSink(logger *zap.Logger) *ZapSink { return audit.NewZapSink(logger) }
